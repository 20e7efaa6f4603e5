package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/cli/output"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/config"
	"github.com/marmos91/smbc/pkg/smbc"
)

// session is the client state of one command run.
type session struct {
	ctx    context.Context
	cfg    *config.Config
	client *smbc.Context
	flush  func()
}

// openSession loads the configuration, sets up logging and tracing and
// creates the client. close must be called when the command is done.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return nil, err
	}

	flush, err := cmdutil.InitObservability(ctx, cfg, Version)
	if err != nil {
		return nil, err
	}

	client, err := cmdutil.NewClient(ctx, cfg)
	if err != nil {
		flush()
		return nil, err
	}

	ctx = logger.WithContext(ctx, logger.NewLogContext(client.ID()))
	logger.DebugCtx(ctx, "session opened", logger.Backend(client.Backend()))

	return &session{ctx: ctx, cfg: cfg, client: client, flush: flush}, nil
}

func (s *session) close() {
	if err := s.client.Close(); err != nil {
		logger.WarnCtx(s.ctx, "close failed", logger.Err(err))
	}
	s.flush()
}

// withSession runs fn with an open session.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(cmd, s, args)
	}
}

func printOutput(cmd *cobra.Command, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	return cmdutil.PrintOutput(cmd.OutOrStdout(), data, isEmpty, emptyMsg, table)
}

func printSuccess(cmd *cobra.Command, msg string) {
	cmdutil.PrintSuccess(cmd.OutOrStdout(), msg)
}
