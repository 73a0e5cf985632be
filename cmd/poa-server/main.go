// Command poa-server serves partial-order-alignment consensus over Arrow IPC,
// gRPC and ZeroMQ.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/POA-Engine/poa-engine/api"
	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/config"
	"github.com/VanDung-dev/POA-Engine/poa-engine/monitoring"
)

var (
	configPath         string
	allowMissingEngine bool

	rootCmd = &cobra.Command{
		Use:           "poa-server",
		Short:         "Consensus server for the native POA engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the enabled transports and serve until interrupted",
		RunE:  runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "poa-server v%s (native engine: %t)\n", api.Version, binding.NativeAvailable())
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	serveCmd.Flags().BoolVar(&allowMissingEngine, "allow-missing-engine", false,
		"start even when the binary was built without the native engine")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := monitoring.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	if !binding.NativeAvailable() && !allowMissingEngine {
		return fmt.Errorf("%w: rebuild with -tags spoa or pass --allow-missing-engine", binding.ErrEngineUnavailable)
	}

	srv, err := newServer(cfg, binding.NewNativeEngine(), logger)
	if err != nil {
		return err
	}
	defer srv.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.run(ctx)
}
