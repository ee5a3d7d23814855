package main

import (
	"fmt"

	"github.com/robbyt/go-polyexpr"
	"github.com/robbyt/go-polyexpr/platform/manifest"
	"github.com/robbyt/go-polyexpr/platform/manifest/loader"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Compile and evaluate the expressions of a YAML manifest",
		Long: `Load a manifest from a file, an http(s) URL or standard input ("-"), compile
its expressions and evaluate each one.

Relative module paths in a manifest file resolve against the file's directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
	cmd.Flags().Bool("check", false, "Compile only, evaluate nothing")
	cmd.Flags().String("bearer-token", "", "Bearer token for http(s) manifests")
	cmd.Flags().String("basic-user", "", "Basic auth user for http(s) manifests")
	cmd.Flags().String("basic-password", "", "Basic auth password for http(s) manifests")
	cmd.Flags().StringToString("header", nil, "Extra request header for http(s) manifests (repeatable)")
	return cmd
}

func httpOptions(cmd *cobra.Command) *loader.HTTPOptions {
	token, _ := cmd.Flags().GetString("bearer-token")
	user, _ := cmd.Flags().GetString("basic-user")
	password, _ := cmd.Flags().GetString("basic-password")
	headers, _ := cmd.Flags().GetStringToString("header")

	opts := loader.DefaultHTTPOptions()
	switch {
	case token != "":
		opts.WithBearerAuth(token)
	case user != "":
		opts.WithBasicAuth(user, password)
	}
	for k, v := range headers {
		opts.Headers[k] = v
	}
	return opts
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := loader.New(args[0], httpOptions(cmd))
	if err != nil {
		return err
	}
	m, err := manifest.Read(ctx, src)
	if err != nil {
		return err
	}
	meta, err := polyexpr.FromManifest(m)
	if err != nil {
		return err
	}
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	ev, err := polyexpr.Compile(ctx, meta, opts...)
	if err != nil {
		reportCompileError(cmd.ErrOrStderr(), err)
		return err
	}
	defer func() { _ = ev.Close() }()

	if check, _ := cmd.Flags().GetBool("check"); check {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "ok: %d expressions\n", len(meta.Expressions()))
		return err
	}
	return printResults(ctx, cmd.OutOrStdout(), ev, meta.Expressions())
}
