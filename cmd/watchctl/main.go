package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(newCommand())
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(c, globalFlags),
		createStopCommand(c, globalFlags),
		createRestartCommand(c, globalFlags),
		createStatusCommand(c, globalFlags),
		createServeCommand(c, globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "watchctl",
		Short: "Supervision tool for the Matrix Watcher stack",
		Long: `Watchctl starts, stops and reports on the fixed set of Matrix Watcher
background processes (sensors, PWA server, watchdog, tunnel) and checks the
public website and the local anomaly API.

Examples:
  watchctl start                    # stop everything, then bring the stack up
  watchctl status                   # process table, website check, recent clusters
  watchctl serve --listen=:8080     # expose the same operations over HTTP`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createStartCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &LifecycleFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Stop the stack, then start every managed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			return c.Start(*flags)
		},
	}
	cmd.Flags().DurationVar(&flags.Settle, "settle", 0, "pause between stop and start (default 2s)")
	return cmd
}

func createStopCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &LifecycleFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to every managed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			return c.Stop(*flags)
		},
	}
	return cmd
}

func createRestartCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &LifecycleFlags{}
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Alias for start (start always stops first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			return c.Restart(*flags)
		},
	}
	cmd.Flags().DurationVar(&flags.Settle, "settle", 0, "pause between stop and start (default 2s)")
	return cmd
}

func createStatusCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report process, website and cluster status",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			return c.Status(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the report as JSON")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "override health and cluster API timeouts")
	return cmd
}

func createServeCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Long: `Serve exposes start, stop, restart and status over HTTP and, when enabled
in the config, a Prometheus scrape endpoint.

Examples:
  watchctl serve
  watchctl serve --config=watchctl.toml --listen=:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			return c.Serve(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address (overrides [server].listen)")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "API base path (overrides [server].base_path)")
	return cmd
}
