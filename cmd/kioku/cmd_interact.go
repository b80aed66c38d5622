package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kioku/internal/kioku/app"
	"github.com/bdobrica/Kioku/internal/kioku/coordinator"
	"github.com/bdobrica/Kioku/internal/kioku/topics"
)

func (c *cli) interactCmd() *cobra.Command {
	var (
		user     string
		response string
		explicit []string
	)
	cmd := &cobra.Command{
		Use:   "interact",
		Short: "Process one user/assistant exchange",
		Long: `Process one exchange and print the resulting report as JSON.

Topics are extracted from the user text unless --topics is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := coordinator.Interaction{
				UserInput:         user,
				AssistantResponse: response,
				Topics:            explicit,
			}
			if !cmd.Flags().Changed("topics") {
				in.Topics = topics.Extract(user)
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				rep, err := a.Process(cmd.Context(), in)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User input")
	cmd.Flags().StringVarP(&response, "response", "r", "", "Assistant response")
	cmd.Flags().StringSliceVarP(&explicit, "topics", "t", nil, "Comma-separated topics, in order")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Process exchanges read from stdin",
		Long: `Read one exchange per line from stdin as "<user>\t<response>" and
process each in order. Lines without a tab are user input with an empty
response. Blank lines are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				sc := bufio.NewScanner(c.in)
				sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
				n := 0
				for sc.Scan() {
					line := strings.TrimRight(sc.Text(), "\r")
					if strings.TrimSpace(line) == "" {
						continue
					}
					user, response, _ := strings.Cut(line, "\t")
					rep, err := a.Process(ctx, coordinator.Interaction{
						UserInput:         user,
						AssistantResponse: response,
						Topics:            topics.Extract(user),
					})
					if err != nil {
						return fmt.Errorf("line %d: %w", n+1, err)
					}
					n++
					c.printf("%d\thistory=%d\tedges+%d\tnodes+%d\tmodules+%d\n",
						n, rep.HistoryLength, rep.EdgesCreated, len(rep.NodesAdded), len(rep.ModulesCreated))
				}
				if err := sc.Err(); err != nil {
					return err
				}
				c.logger.Info("chat: done", "interactions", n)
				return nil
			})
		},
	}
}

func (c *cli) insertCmd() *cobra.Command {
	var marker, snippet string
	cmd := &cobra.Command{
		Use:   "insert <file>",
		Short: "Insert a snippet after a marker in a workspace file",
		Long: `Insert a snippet on a new line after every occurrence of --marker in an
existing workspace file. The previous contents are kept in <file>.bak and the
change is recorded in the module registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res := a.Updater().Insert(cmd.Context(), args[0], marker, snippet)
				if !res.Applied {
					return errors.New(res.Message)
				}
				c.printf("%s\n", res.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&marker, "marker", "", "Line text to insert after")
	cmd.Flags().StringVar(&snippet, "snippet", "", "Code to insert")
	return cmd
}
