package main

import (
	"fmt"

	"github.com/fortiblox/intcode/pkg/arcade"
	"github.com/fortiblox/intcode/pkg/beam"
	"github.com/fortiblox/intcode/pkg/explorer"
	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/network"
	"github.com/fortiblox/intcode/pkg/robot"
	"github.com/fortiblox/intcode/pkg/scaffold"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"
)

var (
	amplifyCommand = cli.Command{
		Action:    amplify,
		Name:      "amplify",
		Usage:     "Find the phase ordering giving the strongest amplifier signal",
		ArgsUsage: "<file|name|hash>",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "phases, p",
				Usage: "Comma-separated phase settings to permute",
				Value: "0,1,2,3,4",
			},
			cli.BoolFlag{
				Name:  "feedback, f",
				Usage: "Wire the amplifiers in a feedback loop",
			},
		},
	}

	paintCommand = cli.Command{
		Action:    paint,
		Name:      "paint",
		Usage:     "Run a hull painting robot and show the hull",
		ArgsUsage: "<file|name|hash>",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "white, w",
				Usage: "Start on a white panel",
			},
		},
	}

	exploreCommand = cli.Command{
		Action:    explore,
		Name:      "explore",
		Usage:     "Map a section with a repair droid and time the oxygen refill",
		ArgsUsage: "<file|name|hash>",
	}

	arcadeCommand = cli.Command{
		Action:    playArcade,
		Name:      "arcade",
		Usage:     "Draw the arcade screen, or play it to the end",
		ArgsUsage: "<file|name|hash>",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "play",
				Usage: "Insert quarters and play until the game ends",
			},
		},
	}

	scaffoldCommand = cli.Command{
		Action:    walkScaffold,
		Name:      "scaffold",
		Usage:     "Map the scaffolding, plan the vacuum robot's route and optionally drive it",
		ArgsUsage: "<file|name|hash>",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "drive",
				Usage: "Wake the robot and collect dust along the route",
			},
		},
	}

	beamCommand = cli.Command{
		Action:    surveyBeam,
		Name:      "beam",
		Usage:     "Survey the tractor beam and find the closest square that fits",
		ArgsUsage: "<file|name|hash>",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "area",
				Usage: "Side of the area nearest the emitter to count",
				Value: 50,
			},
			cli.IntFlag{
				Name:  "square",
				Usage: "Side of the square to fit (0 skips the search)",
				Value: 100,
			},
			cli.BoolFlag{
				Name:  "draw",
				Usage: "Draw the counted area",
			},
		},
	}
)

func amplify(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	phases, err := parseInputs(ctx.String("phases"))
	if err != nil {
		return err
	}

	best, err := network.MaxSignal(prog.Image, phases, ctx.Bool("feedback"), network.Opts{
		Logger:    logger.Named("network"),
		StepLimit: cfg.VM.StepLimit,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d %v\n", best.Signal, best.Phases)
	return nil
}

func paint(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	start := robot.Black
	if ctx.Bool("white") {
		start = robot.White
	}

	w := robot.NewWorld(start)
	if err := robot.Paint(newMachine(prog.Image), w); err != nil {
		return err
	}
	fmt.Printf("%d panels painted\n", w.Painted())
	fmt.Print(w.Render())
	return nil
}

func explore(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}

	section, err := explorer.Explore(newMachine(prog.Image))
	if err != nil {
		return err
	}
	target, ok := section.Target()
	if !ok {
		fmt.Print(section.Render())
		return explorer.ErrNoOxygen
	}
	dist, err := section.Distance(grid.Point{}, target)
	if err != nil {
		return err
	}
	fill, err := section.FillTime()
	if err != nil {
		return err
	}

	fmt.Print(section.Render())
	fmt.Printf("oxygen system at %s, %d moves away\n", target, dist)
	fmt.Printf("refilled after %d minutes\n", fill)
	return nil
}

func playArcade(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}

	m := newMachine(prog.Image)
	screen := arcade.NewScreen()
	if !ctx.Bool("play") {
		if _, err := arcade.Draw(m, screen); err != nil {
			return err
		}
		fmt.Print(screen.Render())
		fmt.Printf("%d blocks\n", screen.Count(arcade.Block))
		return nil
	}

	if err := arcade.InsertQuarters(m); err != nil {
		return err
	}
	score, err := arcade.Play(m, screen)
	if err != nil {
		return err
	}
	fmt.Print(screen.Render())
	fmt.Printf("final score %d\n", score)
	return nil
}

func walkScaffold(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}

	view, err := scaffold.Scan(newMachine(prog.Image))
	if err != nil {
		return err
	}
	fmt.Print(view)
	fmt.Printf("alignment sum %d\n", view.AlignmentSum())

	route, err := view.Route()
	if err != nil {
		return err
	}
	program, err := scaffold.Compress(route)
	if err != nil {
		return err
	}
	fmt.Printf("route %s\n", route)
	for i, line := range program.Lines() {
		fmt.Printf("%-4s %s\n", []string{"main", "A", "B", "C"}[i], line)
	}

	if !ctx.Bool("drive") {
		return nil
	}
	dust, err := scaffold.Drive(newMachine(prog.Image), program)
	if err != nil {
		return err
	}
	fmt.Printf("collected %d dust\n", dust)
	return nil
}

func surveyBeam(ctx *cli.Context) error {
	prog, err := openProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	s := beam.NewScanner(prog.Image, beam.Opts{
		Logger:    logger.Named("beam"),
		StepLimit: cfg.VM.StepLimit,
	})

	area := ctx.Int("area")
	if ctx.Bool("draw") {
		out, err := s.Render(area, area)
		if err != nil {
			return err
		}
		fmt.Print(out)
	}
	n, err := s.Count(area, area)
	if err != nil {
		return err
	}
	fmt.Printf("%d points affected in %dx%d\n", n, area, area)

	if side := ctx.Int("square"); side > 0 {
		corner, err := s.FitSquare(side)
		if err != nil {
			return err
		}
		fmt.Printf("closest %dx%d square at %d,%d (%d)\n",
			side, side, corner.X, corner.Y, corner.X*10000+corner.Y)
	}
	logger.Debug("beam survey done", zap.Int("probes", s.Probes()))
	return nil
}
