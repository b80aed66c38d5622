// Command kioku drives the interaction pipeline from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kioku/common/environment"
	"github.com/bdobrica/Kioku/internal/kioku/app"
	"github.com/bdobrica/Kioku/internal/kioku/config"
	"github.com/bdobrica/Kioku/internal/kioku/observability"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	dataDir    string
	workspace  string
	backend    string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "kioku",
		Short: "Topic memory, reinforcement and connection graph for a chat assistant",
		Long: `kioku records user/assistant exchanges, grows a topic connection graph,
reinforces recurring topics and registers capability modules for the
strongest ones.

Configuration comes from an optional YAML file (--config or KIOKU_CONFIG)
and KIOKU_* environment variables; flags override both.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	env := environment.New(config.EnvPrefix)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", env.StringOr("CONFIG", ""), "Path to a YAML config file")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "Data directory (overrides config)")
	root.PersistentFlags().StringVar(&c.workspace, "workspace", "", "Workspace root for code updates (overrides config)")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "Storage backend: dir or sqlite (overrides config)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		c.initCmd(),
		c.interactCmd(),
		c.chatCmd(),
		c.insertCmd(),
		c.strengthCmd(),
		c.graphCmd(),
		c.modulesCmd(),
		c.compactCmd(),
		c.recallCmd(),
		c.serveCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.workspace != "" {
		cfg.Workspace = c.workspace
	}
	if c.backend != "" {
		cfg.Backend = c.backend
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = observability.Setup(cfg.LogLevel, cfg.LogFormat, c.errOut)
	return nil
}

// withApp opens the application for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
