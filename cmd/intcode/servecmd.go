package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortiblox/intcode/pkg/node"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"
)

var (
	serveCommand = cli.Command{
		Action: serve,
		Name:   "serve",
		Usage:  "Run the JSON-RPC session server and gRPC Executor",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "rpc-addr",
				Usage: "JSON-RPC listen address",
			},
			cli.BoolFlag{
				Name:  "no-rpc",
				Usage: "Disable the JSON-RPC server",
			},
			cli.StringFlag{
				Name:  "grpc-addr",
				Usage: "gRPC listen address (enables the Executor)",
			},
			cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the run cache",
			},
		},
	}

	configCommand = cli.Command{
		Action: dumpConfig,
		Name:   "config",
		Usage:  "Print the effective configuration as TOML",
	}
)

func serve(ctx *cli.Context) error {
	if addr := ctx.String("rpc-addr"); addr != "" {
		cfg.RPC.Addr = addr
	}
	if ctx.Bool("no-rpc") {
		cfg.RPC.Enabled = false
	}
	if addr := ctx.String("grpc-addr"); addr != "" {
		cfg.GRPC.Enabled = true
		cfg.GRPC.Addr = addr
	}
	if ctx.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodeCfg := node.FromFile(cfg, logger)
	nodeCfg.OnError = func(error) { stop() }
	n, err := node.New(&nodeCfg)
	if err != nil {
		return err
	}

	if err := n.Start(sigCtx); err != nil {
		return err
	}
	logger.Info("intcode node running", zap.String("version", Version))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			logger.Info("shutting down")
			if err := n.Stop(); err != nil {
				return err
			}
			return n.Status().LastError
		case <-ticker.C:
			st := n.Status()
			fields := []zap.Field{
				zap.Duration("uptime", st.Uptime.Round(time.Second)),
				zap.Uint64("images", st.ImageCount),
			}
			if st.CacheStats != nil {
				fields = append(fields,
					zap.Uint64("cache_hits", st.CacheStats.Hits),
					zap.Uint64("cache_misses", st.CacheStats.Misses))
			}
			if st.LastError != nil {
				fields = append(fields, zap.NamedError("last_error", st.LastError))
			}
			logger.Info("status", fields...)
		}
	}
}

func dumpConfig(ctx *cli.Context) error {
	return cfg.Write(os.Stdout)
}
