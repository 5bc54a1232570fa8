package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		var ee *ExitError
		if !errors.As(err, &ee) || ee.Err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "devctl:", err)
		}
	}
	os.Exit(exitCode(err))
}

// buildRoot creates the root command and every subcommand.
func buildRoot() *cobra.Command {
	g := &GlobalFlags{}
	root := createRootCommand(g)
	root.AddCommand(
		createDevCommand(g, &DevFlags{}),
		createKillCommand(g, &KillFlags{}),
		createStatusCommand(g, &StatusFlags{}),
		createEnvCommand(g, &EnvFlags{}),
		createRestartCommand(g, &RestartFlags{}),
		createListCommand(g, &ListFlags{}),
		createHistoryCommand(g, &HistoryFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "devctl",
		Short: "Local development control for the web and studio dev servers",
		Long: `devctl checks the environment, starts the dev servers through the
monorepo task runner, remembers the ones running in the background and frees
their ports again.

Examples:
  devctl dev                     # web and studio in the foreground
  devctl dev -b --filter=web     # web only, detached
  devctl status
  devctl kill --port 3000`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to devctl.toml (default: <dir>/devctl.toml when present)")
	root.PersistentFlags().StringVar(&flags.Dir, "dir", "", "project root (default: current directory)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "write logs to a rotated file instead of stderr")
	return root
}

// withApp builds the app for one invocation and closes it afterwards.
func withApp(cmd *cobra.Command, g *GlobalFlags, fn func(a *app) error) error {
	a, err := newApp(*g, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func createDevCommand(g *GlobalFlags, f *DevFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Start the dev servers",
		Long: `Validate the environment, make sure the service ports are free and run
the task runner. In the foreground devctl waits for the runner and exits with
its status; with --background the runner is detached, its output goes to
.devctl/logs and its pid is tracked for "devctl kill --all".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdDev(cmd.Context(), *f) })
		},
	}
	cmd.Flags().BoolVarP(&f.Background, "background", "b", false, "detach and track the dev servers")
	cmd.Flags().BoolVarP(&f.Watch, "watch", "w", false, "stay attached to the runner (default)")
	cmd.Flags().BoolVar(&f.SkipEnvCheck, "skip-env-check", false, "do not validate environment variables first")
	cmd.Flags().StringVar(&f.Filter, "filter", "", "start only this service")
	cmd.MarkFlagsMutuallyExclusive("background", "watch")
	return cmd
}

func createKillCommand(g *GlobalFlags, f *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kill",
		Aliases: []string{"stop"},
		Short:   "Free the dev server ports",
		Long: `Terminate whatever listens on the given ports (default: every configured
service port). Processes get SIGTERM and --timeout to exit before being killed.
Ports that cannot be freed are reported but do not change the exit status.

Examples:
  devctl kill
  devctl kill --port 3000 --port 3333 -f
  devctl stop --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdKill(cmd.Context(), *f) })
		},
	}
	cmd.Flags().IntSliceVar(&f.Ports, "port", nil, "port to free (repeatable)")
	cmd.Flags().BoolVarP(&f.Force, "force", "f", false, "kill immediately without a graceful shutdown")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "graceful shutdown timeout (default from config, 5s)")
	cmd.Flags().BoolVar(&f.All, "all", false, "also stop every tracked background process")
	return cmd
}

func createStatusCommand(g *GlobalFlags, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show environment, tracked processes and port usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdStatus(cmd.Context(), *f) })
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&f.Prometheus, "prometheus", false, "print Prometheus text exposition")
	cmd.MarkFlagsMutuallyExclusive("json", "prometheus")
	return cmd
}

func createEnvCommand(g *GlobalFlags, f *EnvFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Check or prepare the local environment files",
	}
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate environment variables, lockfile and Node version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdEnvValidate(cmd.Context(), *f) })
		},
	}
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Create local env files from their .example templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdEnvSetup(*f) })
		},
	}
	cmd.PersistentFlags().BoolVar(&f.JSON, "json", false, "print JSON")
	cmd.AddCommand(validate, setup)
	return cmd
}

func createRestartCommand(g *GlobalFlags, f *RestartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the dev servers and start them again in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdRestart(cmd.Context(), *f) })
		},
	}
	cmd.Flags().BoolVar(&f.SkipKill, "skip-kill", false, "do not stop running servers first")
	cmd.Flags().BoolVar(&f.SkipEnvCheck, "skip-env-check", false, "do not validate environment variables first")
	cmd.Flags().StringVar(&f.Filter, "filter", "", "restart only this service")
	return cmd
}

func createListCommand(g *GlobalFlags, f *ListFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ps"},
		Short:   "List tracked background processes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdList(*f) })
		},
	}
	cmd.Flags().BoolVar(&f.Prune, "prune", false, "remove records of processes that are gone")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON")
	return cmd
}

func createHistoryCommand(g *GlobalFlags, f *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent start and stop events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error { return a.cmdHistory(cmd.Context(), *f) })
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "number of events to show")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON")
	return cmd
}
