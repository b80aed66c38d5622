package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kioku/common/version"
	"github.com/bdobrica/Kioku/internal/kioku/app"
)

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create empty stores in the data directory",
		Long:  "Seed empty memory, connections and reinforcement documents. Existing documents are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Init(cmd.Context(), c.cfg); err != nil {
				return err
			}
			c.printf("initialized %s (%s backend)\n", c.cfg.DataDir, c.cfg.Backend)
			return nil
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the compaction loop, module watcher and health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.withApp(ctx, func(a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "http-addr", "", "Listen address for /health, /status and /metrics")
	return cmd
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.printf("%s\n", version.Info())
			return nil
		},
	}
}
