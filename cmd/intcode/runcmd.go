package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/imagestore"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/loader"
	"github.com/fortiblox/intcode/pkg/remote"
	"github.com/fortiblox/intcode/pkg/runcache"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"
)

var (
	inputFlag = cli.StringFlag{
		Name:  "input, i",
		Usage: "Comma-separated input values",
	}

	runCommand = cli.Command{
		Action:    runProgram,
		Name:      "run",
		Usage:     "Run a program on fixed inputs and print its outputs",
		ArgsUsage: "<file|name|hash>",
		Flags: []cli.Flag{
			inputFlag,
			cli.BoolFlag{
				Name:  "cache",
				Usage: "Use the run cache",
			},
			cli.StringFlag{
				Name:  "remote",
				Usage: "Execute on a gRPC Executor at this address",
			},
		},
		Description: `
The program is read from a file (plain or zstd-compressed) or looked up in the
image store by name or hash. Outputs are printed one per line. A program that
stops waiting for more input exits with status 2.`,
	}

	disasmCommand = cli.Command{
		Action:    disassemble,
		Name:      "disasm",
		Usage:     "Disassemble a program image",
		ArgsUsage: "<file|name|hash>",
	}
)

func runProgram(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	inputs, err := parseInputs(ctx.String("input"))
	if err != nil {
		return err
	}

	var res *runcache.Result
	cached := false
	switch {
	case ctx.String("remote") != "":
		res, cached, err = executeRemote(ctx.String("remote"), prog, inputs)
	case ctx.Bool("cache"):
		res, cached, err = executeCached(prog, inputs)
	default:
		res, err = execute(prog, inputs)
	}
	if err != nil {
		return err
	}

	for _, v := range res.Outputs {
		fmt.Println(v)
	}
	logger.Debug("run finished", zap.String("image", prog.Hash.Short()))
	fmt.Fprintf(os.Stderr, "%s after %d steps (cell 0 = %d, cached = %v)\n",
		res.Status, res.Steps, res.Cell0, cached)
	if res.Status == intcode.StatusSuspended {
		return cli.NewExitError("program is waiting for more input", 2)
	}
	return nil
}

func execute(prog *loader.Program, inputs []int64) (*runcache.Result, error) {
	m := newMachine(prog.Image)
	m.PushInputs(inputs...)
	st, err := m.Run()
	if err != nil {
		return nil, err
	}
	cell0, err := m.Memory().Get(0)
	if err != nil {
		return nil, err
	}
	return &runcache.Result{
		Outputs: m.DrainOutput(),
		Status:  st,
		Steps:   m.Steps(),
		Cell0:   cell0,
	}, nil
}

func executeCached(prog *loader.Program, inputs []int64) (*runcache.Result, bool, error) {
	cc := runcache.Config{
		Path:       cfg.Cache.Path,
		InMemory:   cfg.Cache.InMemory,
		SyncWrites: cfg.Cache.SyncWrites,
		StepLimit:  cfg.VM.StepLimit,
		Logger:     logger.Named("runcache"),
	}
	cache, err := runcache.Open(cc)
	if err != nil {
		return nil, false, err
	}
	defer cache.Close()
	return cache.Execute(prog, inputs)
}

func executeRemote(addr string, prog *loader.Program, inputs []int64) (*runcache.Result, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := remote.Dial(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	defer client.Close()

	resp, err := client.Execute(ctx, &remote.ExecuteRequest{Image: prog.Image, Inputs: inputs})
	if err != nil {
		return nil, false, err
	}
	// Cell 0 is not reported by the Executor.
	return &runcache.Result{
		Outputs: resp.Outputs,
		Status:  resp.Status,
		Steps:   resp.Steps,
	}, resp.Cached, nil
}

func disassemble(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	for _, in := range intcode.Disassemble(prog.Image) {
		fmt.Println(in)
	}
	return nil
}

func newMachine(image []int64) *intcode.Machine {
	return intcode.New(0, image, intcode.Opts{
		Logger:    logger.Named("vm"),
		StepLimit: cfg.VM.StepLimit,
	})
}

// openProgram loads ref from disk, falling back to the image store.
func openProgram(ref string) (*loader.Program, error) {
	if ref == "" {
		return nil, errors.New("a program file, name or hash is required")
	}
	if _, err := os.Stat(ref); err == nil {
		return loader.LoadFile(ref)
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("%s: no such file and no image store at %s", ref, cfg.Store.Path)
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	hash, err := store.Resolve(ref)
	if errors.Is(err, imagestore.ErrImageNotFound) {
		if h, herr := types.ImageHashFromBase58(ref); herr == nil {
			hash, err = h, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	rec, err := store.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return loader.NewProgram(ref, rec.Image), nil
}

func openStore() (*imagestore.Store, error) {
	sc := imagestore.DefaultConfig(cfg.Store.Path)
	sc.CacheSize = cfg.Store.CacheSize
	sc.NoSync = cfg.Store.NoSync
	return imagestore.Open(sc)
}

func parseInputs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	vals, err := loader.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return vals, nil
}
