package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loykin/jenky"
	"github.com/loykin/jenky/pkg/template"
)

func createConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect application config files",
	}
	var path string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (defaults, env overrides and resolved paths) as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(path, cmd.OutOrStdout())
		},
	}
	show.Flags().StringVar(&path, "app-config", "jenky_app_config.json", "application config file")
	cmd.AddCommand(show, createConfigInitCommand())
	return cmd
}

// ConfigInitFlags holds flags for config init.
type ConfigInitFlags struct {
	AppName string
	Repos   []string
	Out     string
	Force   bool
}

func createConfigInitCommand() *cobra.Command {
	f := &ConfigInitFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter application config",
		Long: `Write a starter application config. The format follows the --out extension.

Examples:
  jenky config init --app-name "My services" --repo api:go --repo worker:python
  jenky config init --out jenky.yaml --repo site:node`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.AppName, "app-name", "jenky", "dashboard title")
	cmd.Flags().StringArrayVar(&f.Repos, "repo", nil, "repo as name[:kind], kind one of "+strings.Join(template.Kinds(), "|"))
	cmd.Flags().StringVar(&f.Out, "out", "jenky_app_config.json", "file to write")
	cmd.Flags().BoolVar(&f.Force, "force", false, "overwrite an existing file")
	return cmd
}

func runConfigInit(f *ConfigInitFlags, out io.Writer) error {
	app := template.AppConfig{AppName: f.AppName}
	for _, spec := range f.Repos {
		r, err := template.ParseRepoSpec(spec)
		if err != nil {
			return err
		}
		app.Repos = append(app.Repos, r)
	}
	b, err := template.Render(app, f.Out)
	if err != nil {
		return err
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if f.Force {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	// #nosec G304 -- path given by the operator
	file, err := os.OpenFile(f.Out, flag, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", f.Out, err)
	}
	if _, err := file.Write(b); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "wrote %s with %d repo(s)\n", f.Out, len(app.Repos))
	return nil
}

func runConfigShow(path string, out io.Writer) error {
	c, err := jenky.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
