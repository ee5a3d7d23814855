package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/isolation/subprocess"
	"github.com/robbyt/go-polyexpr/isolation/worker"
	"github.com/robbyt/go-polyexpr/options"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "polyexpr",
		Short: "Sandboxed expression evaluator for Starlark and Risor",
		Long: `polyexpr - compile a set of expressions once, then evaluate them in isolation.

Expressions run in an isolation context that has no file, network, environment
or clock access. Host values are bound into the context as named extensions.
Evaluation failures print null; compile failures print every diagnostic.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("runtime", "worker", "Isolation runtime: worker, subprocess")
	root.PersistentFlags().String("work-dir", options.DefaultWorkDir(), "Directory for compiled artifacts")
	root.PersistentFlags().Uint64("max-steps", isolation.DefaultMaxSteps, "Step budget per evaluation")
	root.PersistentFlags().Duration("timeout", isolation.DefaultTimeout, "Wall clock budget per evaluation")
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newEvalCmd(), newRunCmd())
	return root
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// buildOptions turns the persistent flags into compile options.
func buildOptions(cmd *cobra.Command) ([]options.Option, error) {
	flags := cmd.Flags()
	rt, _ := flags.GetString("runtime")
	workDir, _ := flags.GetString("work-dir")
	maxSteps, _ := flags.GetUint64("max-steps")
	timeout, _ := flags.GetDuration("timeout")
	levelName, _ := flags.GetString("log-level")

	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})

	var runtime isolation.Runtime
	switch strings.ToLower(rt) {
	case "worker":
		runtime = worker.New(handler)
	case "subprocess":
		runtime, err = subprocess.New(subprocess.WithLogHandler(handler))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown runtime %q: use worker or subprocess", rt)
	}

	perms := isolation.MinimalPermissions()
	perms.MaxSteps = maxSteps
	perms.Timeout = timeout

	return []options.Option{
		options.WithLogHandler(handler),
		options.WithRuntime(runtime),
		options.WithWorkDir(workDir),
		options.WithPermissions(perms),
	}, nil
}
