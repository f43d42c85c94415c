// Package cmd implements the oauthctl admin commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/bootstrap"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/services"
)

// AppName is the binary name.
const AppName = "oauthctl"

// app carries the state shared by every command of one invocation.
type app struct {
	cfgFile string
	trace   bool

	logger  log.Logger
	engine  *services.Engine
	closeFn bootstrap.CloseFunc
}

// newRootCmd builds the command tree. The engine is opened before any
// subcommand runs and released by Run.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "oauthctl manages the state of a shadow-oauth authorization server",
		Long:          `A command-line interface for registering and revoking clients, inspecting tokens and managing trusted issuers directly against the configured store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is ./oauth.yaml, /etc/shadow-oauth/oauth.yaml or $HOME/.shadow-oauth/oauth.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "write OpenTelemetry spans to stderr")

	rootCmd.AddCommand(
		newClientCmd(a),
		newTokenCmd(a),
		newGrantCmd(a),
		newIssuerCmd(a),
	)
	return rootCmd
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}

	a.logger = log.NewZerologAdapterTo(cmd.ErrOrStderr(), log.ParseLevel(cfg.LogLevel), cfg.LogPretty)

	opts := bootstrap.Options{Logger: a.logger, AuditOutput: cmd.ErrOrStderr()}
	if a.trace {
		opts.TraceOutput = cmd.ErrOrStderr()
	}

	a.engine, a.closeFn, err = bootstrap.Open(cmd.Context(), cfg, opts)
	if err != nil {
		a.logger.Error(cmd.Context(), "Failed to open authorization store", err)
		return err
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.closeFn == nil {
		return nil
	}
	err := a.closeFn(ctx)
	a.closeFn, a.engine = nil, nil
	return err
}

// Run executes one oauthctl invocation with args, writing results to stdout
// and diagnostics to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if cerr := a.close(context.WithoutCancel(ctx)); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}
	return err
}
