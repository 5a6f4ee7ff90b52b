// Package corectl implements the operator command line: draining the local
// log fallback queue into the primary sink and minting session tokens.
package corectl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/eventlog"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/session"
)

// tokenValidity is how long a minted session token stays usable.
const tokenValidity = 24 * time.Hour

type App struct {
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer

	// openStore is a seam so tests can avoid a real database.
	openStore func(ctx context.Context, dsn string) (docstore.Store, error)
}

func NewApp(cfg *config.Config, logger logging.Logger, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		out:    out,
		openStore: func(ctx context.Context, dsn string) (docstore.Store, error) {
			s, err := docstore.NewPostgresStore(dsn)
			if err != nil {
				return nil, err
			}
			s.SetCallTimeout(cfg.StoreCallTimeout)
			return s, nil
		},
	}
}

// Run dispatches one subcommand: "flush" or "token".
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: corectl <flush|token> [flags]")
	}

	switch args[0] {
	case "flush":
		return a.runFlush(ctx)
	case "token":
		return a.runToken(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// runFlush drains the fallback queue into the primary log sink.
func (a *App) runFlush(ctx context.Context) error {
	queue, err := eventlog.OpenQueue(a.cfg.FallbackQueuePath, a.cfg.FallbackQueueCapacity)
	if err != nil {
		return err
	}
	if queue.Len() == 0 {
		fmt.Fprintln(a.out, "queue is empty")
		return nil
	}

	store, err := a.openStore(ctx, a.cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}

	d := eventlog.NewDispatcher(
		[]eventlog.Sink{eventlog.NewDocstoreSink(store)},
		queue,
		session.NewAnonymous(a.cfg.Environment),
		a.logger,
		a.cfg.LogFlushInterval,
		a.cfg.Environment,
	)

	n, err := d.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flushed %d entries, %d left: %w", n, queue.Len(), err)
	}
	fmt.Fprintf(a.out, "flushed %d entries\n", n)
	return nil
}

// runToken mints a session token. The signing secret comes from the -secret
// flag or, when absent, is prompted for without echo.
func (a *App) runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to mint the token for")
	secret := fs.String("secret", "", "signing secret (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("token: -user is required")
	}

	key := []byte(*secret)
	if len(key) == 0 {
		var err error
		key, err = getPassword(a.out, "Enter signing secret: ")
		if err != nil {
			return err
		}
	}

	tok, err := session.GenerateToken(*userID, key, tokenValidity)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
