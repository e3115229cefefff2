// Command intcode runs, inspects and serves Intcode programs.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fortiblox/intcode/internal/logging"
	"github.com/fortiblox/intcode/pkg/config"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"
)

// Version information
var (
	Version   = "1.0.0"
	GitCommit = "dev"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "TOML configuration file",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "Directory for the image store and run cache",
		Value: "./data",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}
	stepLimitFlag = cli.Uint64Flag{
		Name:  "step-limit",
		Usage: "Maximum instructions per run (0 = unlimited)",
	}
	devFlag = cli.BoolFlag{
		Name:  "dev",
		Usage: "Human-friendly development logging",
	}
)

// Set up in app.Before.
var (
	cfg    *config.Config
	logger *zap.Logger
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "intcode"
	app.Usage = "Intcode virtual machine and services"
	app.Version = fmt.Sprintf("%s (%s)", Version, GitCommit)
	app.Flags = []cli.Flag{configFlag, dataDirFlag, logLevelFlag, stepLimitFlag, devFlag}
	app.Commands = []cli.Command{
		runCommand,
		disasmCommand,
		importCommand,
		exportCommand,
		imagesCommand,
		amplifyCommand,
		paintCommand,
		exploreCommand,
		arcadeCommand,
		scaffoldCommand,
		beamCommand,
		serveCommand,
		configCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Before = setup
	app.After = func(ctx *cli.Context) error {
		if logger != nil {
			logger.Sync()
		}
		return nil
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies global flag overrides and builds
// the logger.
func setup(ctx *cli.Context) error {
	loaded, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
	return err
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var c *config.Config
	if path := ctx.GlobalString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	} else {
		def := config.Default(ctx.GlobalString("data-dir"))
		c = &def
	}

	if ctx.GlobalIsSet("data-dir") {
		fresh := config.Default(ctx.GlobalString("data-dir"))
		c.Store.Path = fresh.Store.Path
		c.Cache.Path = fresh.Cache.Path
	}
	if ctx.GlobalIsSet("log-level") {
		c.Log.Level = ctx.GlobalString("log-level")
	}
	if ctx.GlobalIsSet("step-limit") {
		c.VM.StepLimit = ctx.GlobalUint64("step-limit")
	}
	if ctx.GlobalBool("dev") {
		c.Log.Development = true
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
