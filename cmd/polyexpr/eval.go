package main

import (
	"fmt"
	"strings"

	"github.com/robbyt/go-polyexpr"
	"github.com/robbyt/go-polyexpr/platform/extension"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [expression...]",
		Short: "Compile the given expressions and evaluate each one",
		Long: `Compile every expression argument into one container, then evaluate them in order.

Examples:
  polyexpr eval '1 + 1' 'math.sqrt(16)'
  polyexpr eval --lang risor --set 'Ctx={X: 5}' 'Ctx.X * 2'
  polyexpr eval --module helpers=./helpers.star 'helpers.double(21)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: runEval,
	}
	cmd.Flags().StringP("lang", "l", "", "Language: starlark, risor (default starlark)")
	cmd.Flags().StringArray("set", nil, "Bind an extension name=value, value in YAML (repeatable)")
	cmd.Flags().StringArray("import", nil, "Import a standard module (repeatable)")
	cmd.Flags().StringArray("module", nil, "Register a module file name=path (repeatable)")
	return cmd
}

func splitPair(kind, s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid %s %q (expected name=value)", kind, s)
	}
	return name, value, nil
}

func buildMeta(cmd *cobra.Command, exprs []string) (*polyexpr.ExpressionMeta, error) {
	lang, _ := cmd.Flags().GetString("lang")
	sets, _ := cmd.Flags().GetStringArray("set")
	imports, _ := cmd.Flags().GetStringArray("import")
	modules, _ := cmd.Flags().GetStringArray("module")

	meta, err := polyexpr.NewMeta(lang)
	if err != nil {
		return nil, err
	}
	if err := meta.AddExpressions(exprs...); err != nil {
		return nil, err
	}
	for _, name := range imports {
		if err := meta.AddImport(name); err != nil {
			return nil, err
		}
	}
	for _, m := range modules {
		name, path, err := splitPair("module", m)
		if err != nil {
			return nil, err
		}
		if err := meta.AddModule(name, path); err != nil {
			return nil, err
		}
	}
	for _, s := range sets {
		name, raw, err := splitPair("extension", s)
		if err != nil {
			return nil, err
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		if err := meta.AddExtension(extension.New(name, value)); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	meta, err := buildMeta(cmd, args)
	if err != nil {
		return err
	}
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ev, err := polyexpr.Compile(ctx, meta, opts...)
	if err != nil {
		reportCompileError(cmd.ErrOrStderr(), err)
		return err
	}
	defer func() { _ = ev.Close() }()

	return printResults(ctx, cmd.OutOrStdout(), ev, meta.Expressions())
}
