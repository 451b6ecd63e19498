package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/jenky/pkg/client"
)

func newClient(gf *GlobalFlags) *client.Client {
	return client.New(client.Config{BaseURL: gf.APIUrl, Timeout: gf.APITimeout})
}

// ReposFlags holds flags for the repos command.
type ReposFlags struct {
	JSON bool
}

func createReposCommand(gf *GlobalFlags) *cobra.Command {
	f := &ReposFlags{}
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Show repositories, git refs and process state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepos(cmd.Context(), newClient(gf), f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print the raw RepoDict")
	return cmd
}

func runRepos(ctx context.Context, cl *client.Client, f *ReposFlags, out io.Writer) error {
	dict, err := cl.Repos(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dict)
	}
	for _, name := range sortedRepoNames(dict) {
		r := dict[name]
		_, _ = fmt.Fprintf(out, "%s @ %s\n", name, r.GitRef)
		if r.GitMessage != "" {
			_, _ = fmt.Fprintf(out, "  %s\n", firstLine(r.GitMessage))
		}
		for _, p := range r.Processes {
			state := "stopped"
			if p.Running {
				state = "running since " + time.UnixMilli(p.CreateTime).Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(out, "  - %s: %s\n", p.Name, state)
		}
	}
	return nil
}

func createActionCommand(gf *GlobalFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <repo> <process>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd.Context(), newClient(gf), args[0], args[1], action, cmd.OutOrStdout())
		},
	}
}

func runAction(ctx context.Context, cl *client.Client, repo, proc, action string, out io.Writer) error {
	resp, err := cl.Action(ctx, repo, proc, action)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s %s/%s\n", resp.Action, resp.RepoID, resp.ProcessID)
	return nil
}

func createTailCommand(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tail <repo> <process> [logType]",
		Short: "Print the end of a process output file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logType := "out"
			if len(args) == 3 {
				logType = args[2]
			}
			text, err := newClient(gf).Tail(cmd.Context(), args[0], args[1], logType)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
}

// LogsFlags holds flags for the logs command.
type LogsFlags struct {
	Since float64
}

func createLogsCommand(gf *GlobalFlags) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent daemon log messages, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), newClient(gf), f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Float64Var(&f.Since, "since", 0, "created cursor returned by a previous call")
	return cmd
}

func runLogs(ctx context.Context, cl *client.Client, f *LogsFlags, out io.Writer) error {
	entries, err := cl.Logs(ctx, f.Since)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", strconv.FormatFloat(entries[i].Created, 'f', 3, 64), entries[i].Message)
	}
	return nil
}
