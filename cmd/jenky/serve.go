package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/jenky"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	AppConfig string
	Host      string
	Port      int
}

func createServeCommand() *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the jenky daemon",
		Long: `Start the supervisor loop and the HTTP API.

Examples:
  jenky serve                                  # uses ./jenky_app_config.json
  jenky serve --app-config repos.yaml --port 9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, f, cmd.Flags().Changed("host"), cmd.Flags().Changed("port"))
		},
	}
	cmd.Flags().StringVar(&f.AppConfig, "app-config", "jenky_app_config.json", "application config file (json, yaml or toml)")
	cmd.Flags().StringVar(&f.Host, "host", "127.0.0.1", "listen host")
	cmd.Flags().IntVar(&f.Port, "port", 8000, "listen port")
	return cmd
}

func runServe(ctx context.Context, f *ServeFlags, hostSet, portSet bool) error {
	c, err := jenky.LoadConfig(f.AppConfig)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if hostSet {
		c.Server.Host = f.Host
	}
	if portSet {
		c.Server.Port = f.Port
	}
	app, err := jenky.NewApp(ctx, c, jenky.Options{Stdout: os.Stderr})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return app.Serve(ctx, c.Server.Host+":"+strconv.Itoa(c.Server.Port))
}
