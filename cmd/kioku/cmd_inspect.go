package main

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kioku/internal/kioku/app"
)

func (c *cli) strengthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strength [topic...]",
		Short: "Show reinforcement strengths",
		Long:  "Show the strength of the given topics, or of every topic by descending strength.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				if len(args) > 0 {
					for _, topic := range args {
						n, err := a.Tracker().Strength(ctx, topic)
						if err != nil {
							return err
						}
						c.printf("%s\t%d\n", topic, n)
					}
					return nil
				}

				all, err := a.Tracker().Snapshot(ctx)
				if err != nil {
					return err
				}
				type row struct {
					topic string
					n     int
				}
				rows := make([]row, 0, len(all))
				for t, n := range all {
					rows = append(rows, row{t, n})
				}
				slices.SortFunc(rows, func(x, y row) int {
					if d := cmp.Compare(y.n, x.n); d != 0 {
						return d
					}
					return cmp.Compare(x.topic, y.topic)
				})
				for _, r := range rows {
					c.printf("%s\t%d\n", r.topic, r.n)
				}
				return nil
			})
		},
	}
}

func (c *cli) graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the connection graph as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				doc, err := a.Graph().Snapshot(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			})
		},
	}
}

func (c *cli) modulesCmd() *cobra.Command {
	var records bool
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List capability modules",
		Long:  "List the capability descriptors in the modules directory, or with --records the module registry log.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				if records {
					recs, err := a.Registry().Records(ctx)
					if err != nil {
						return err
					}
					for _, r := range recs {
						c.printf("%s\t%s\t%s\t%s\n", r.Timestamp, r.Status, r.Module, r.Topic)
					}
					return nil
				}
				for _, d := range a.Index().List() {
					state := "enabled"
					if !d.Enabled {
						state = "disabled"
					}
					c.printf("%s\t%s\t%s\t%s\n", d.Name, d.Topic, d.Handler, state)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&records, "records", false, "Show the registry log instead of descriptors")
	return cmd
}

func (c *cli) compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rebuild the long-memory digest once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				n, err := a.Compactor().Compact(ctx)
				if err != nil {
					return err
				}
				c.printf("kept %d memories\n", n)
				return nil
			})
		},
	}
}

// emptyRecall is printed when there is no long memory to recall from.
const emptyRecall = "Pamięć pusta."

func (c *cli) recallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recall",
		Short: "Print one memory from the long-memory digest",
		Long:  "Print a randomly chosen memory from the long-memory digest built by compact or serve.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				text, ok, err := a.Compactor().Recall(ctx)
				if err != nil {
					return err
				}
				if !ok {
					text = emptyRecall
				}
				c.printf("%s\n", text)
				return nil
			})
		},
	}
}
