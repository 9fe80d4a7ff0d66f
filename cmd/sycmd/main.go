package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen string
}

// ClientFlags holds flags for commands that talk to a running daemon.
type ClientFlags struct {
	APIUrl string
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}

	root := &cobra.Command{
		Use:           "sycmd",
		Short:         "ycmd completion server broker",
		Long:          "sycmd supervises per-project ycmd backend servers and brokers completion requests to them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to sycmd.toml")
	root.PersistentFlags().StringVar(&gf.LogLevel, "log-level", "info", "broker log level (debug|info|warn|error)")

	sf := &ServeFlags{}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(gf, sf)
		},
	}
	serve.Flags().StringVar(&sf.Listen, "listen", "", "debug API listen address (overrides config)")
	root.AddCommand(serve)

	cf := &ClientFlags{}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the servers managed by a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cf)
		},
	}
	status.Flags().StringVar(&cf.APIUrl, "api-url", "", "daemon API base URL")
	root.AddCommand(status)

	shutdownFlags := &ClientFlags{}
	var hard bool
	shutdown := &cobra.Command{
		Use:   "shutdown",
		Short: "Stop all servers managed by a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShutdown(shutdownFlags, hard)
		},
	}
	shutdown.Flags().StringVar(&shutdownFlags.APIUrl, "api-url", "", "daemon API base URL")
	shutdown.Flags().BoolVar(&hard, "hard", false, "kill backend processes instead of asking them to exit")
	root.AddCommand(shutdown)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the sycmd version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("sycmd %s\n", version)
		},
	})

	return root
}
