package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fortiblox/intcode/pkg/loader"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"
)

var (
	importCommand = cli.Command{
		Action:    importImage,
		Name:      "import",
		Usage:     "Add a program file to the image store",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "name, n",
				Usage: "Name to store the image under (default: file name)",
			},
		},
	}

	exportCommand = cli.Command{
		Action:    exportImage,
		Name:      "export",
		Usage:     "Write a stored image to a file",
		ArgsUsage: "<name|hash> <file>",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "compress, z",
				Usage: "Write a zstd-compressed image",
			},
		},
	}

	imagesCommand = cli.Command{
		Action: listImages,
		Name:   "images",
		Usage:  "List stored images",
	}
)

func importImage(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("a program file is required")
	}
	prog, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	name := ctx.String("name")
	if name == "" {
		name = prog.Name
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	hash, err := store.Put(name, prog.Image)
	if err != nil {
		return err
	}
	logger.Info("image imported", zap.String("name", name), zap.Int("cells", len(prog.Image)))
	fmt.Println(hash)
	return nil
}

func exportImage(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: export <name|hash> <file>")
	}
	prog, err := openProgram(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	f, err := os.Create(ctx.Args().Get(1))
	if err != nil {
		return err
	}
	if ctx.Bool("compress") {
		err = loader.WriteCompressed(f, prog.Image)
	} else {
		_, err = fmt.Fprintln(f, loader.Format(prog.Image))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func listImages(ctx *cli.Context) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tNAMES\tCELLS\tADDED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			info.Hash,
			strings.Join(info.Names, ","),
			info.Size,
			info.AddedAt.Format(time.DateTime))
	}
	return w.Flush()
}
