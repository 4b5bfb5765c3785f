package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/store"
	"github.com/roach88/qflow/internal/transport/rest"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string // empty keeps sessions in memory only
	Policy   string

	// Logger overrides the stderr logger (for testing).
	Logger *slog.Logger
	// IDGenerator overrides the UUIDv7 session id generator (for testing).
	IDGenerator engine.IDGenerator
	// Ready receives the bound address once the listener is up (for testing).
	Ready chan<- string
}

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve questionnaire sessions over HTTP",
		Long: `Start the HTTP API for the built-in template catalog.

With --db every answer is logged to SQLite and sessions survive restarts:
a session unknown to the running server is rebuilt from its log on first
access.

Example:
  qflow serve --addr :8080 --db ./qflow.db
  qflow serve --policy clear --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (optional)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "retain", "default hidden answer policy (retain|clear)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.Logger
	if logger == nil {
		logger = newLogger(opts.Verbose)
	}

	policy, err := engine.ParseHiddenAnswerPolicy(opts.Policy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --policy", err)
	}

	serverOpts := []rest.Option{
		rest.WithLogger(logger),
		rest.WithDefaultPolicy(policy),
	}
	if opts.IDGenerator != nil {
		serverOpts = append(serverOpts, rest.WithIDGenerator(opts.IDGenerator))
	}

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		serverOpts = append(serverOpts, rest.WithStore(st))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", opts.Addr), err)
	}

	srv := &http.Server{
		Handler:           rest.NewServer(serverOpts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("server listening", "addr", addr, "policy", policy.String(), "persistent", opts.Database != "")
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", addr)
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
