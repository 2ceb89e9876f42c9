package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/orderkeep/internal/cipher"
	"github.com/roach88/orderkeep/internal/config"
	"github.com/roach88/orderkeep/internal/engine"
	"github.com/roach88/orderkeep/internal/lifecycle"
	"github.com/roach88/orderkeep/internal/record"
	"github.com/roach88/orderkeep/internal/scraper"
	"github.com/roach88/orderkeep/internal/store"
)

// run opens the snapshot, performs the selected mode and always saves the
// snapshot again before returning.
func run(cmd *cobra.Command, opts *RootOptions) (err error) {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	if err := cfg.Validate(opts.Update || opts.Refresh); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	window, err := opts.window()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid date", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := lifecycle.Open(ctx, lifecycle.Options{
		Path:     cfg.Database.Path,
		Password: cfg.Database.Password,
		Logger:   slog.Default(),
	})
	if err != nil {
		if errors.Is(err, cipher.ErrAuthentication) {
			return WrapExitError(ExitFailure, "wrong database password or damaged snapshot", err)
		}
		return WrapExitError(ExitFailure, "failed to open snapshot", err)
	}
	defer func() {
		if closeErr := session.Close(ctx); closeErr != nil && err == nil {
			err = WrapExitError(ExitFailure, "failed to save snapshot", closeErr)
		}
	}()

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	return session.Run(ctx, func(ctx context.Context, st *store.Store) error {
		switch {
		case opts.Update:
			return runSync(ctx, st, cfg, opts, out, func(e *engine.Engine) (engine.Stats, error) {
				return e.Update(ctx, window)
			})
		case opts.Refresh:
			return runSync(ctx, st, cfg, opts, out, func(e *engine.Engine) (engine.Stats, error) {
				return e.Refresh(ctx)
			})
		default:
			return searchLoop(ctx, st, cmd.InOrStdin(), out)
		}
	})
}

func runSync(ctx context.Context, st *store.Store, cfg config.Config, opts *RootOptions, out *OutputFormatter, sync func(*engine.Engine) (engine.Stats, error)) error {
	fetcher, err := newFetcher(cfg, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create portal client", err)
	}

	engineOpts := []engine.Option{engine.WithLogger(slog.Default())}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}

	stats, err := sync(engine.New(st, fetcher, engineOpts...))
	if err != nil {
		return WrapExitError(ExitFailure, syncFailure(err), err)
	}
	if stats.BatchID != "" {
		out.VerboseLog("batch %s: %d products reused", stats.BatchID, stats.ReusedProducts)
	}
	return out.Success(syncReport(stats))
}

func newFetcher(cfg config.Config, opts *RootOptions) (engine.Fetcher, error) {
	if opts.NewFetcher != nil {
		return opts.NewFetcher(cfg)
	}
	return scraper.New(cfg.Scraper(), scraper.WithLogger(slog.Default()))
}

// syncFailure names the failure for the user.
func syncFailure(err error) string {
	switch {
	case errors.Is(err, engine.ErrEmptyStore):
		return "nothing to refresh"
	case errors.Is(err, scraper.ErrLogin):
		return "portal login refused"
	case store.IsConsistencyError(err):
		return "inconsistent data from the portal, nothing was merged"
	case errors.Is(err, record.ErrMalformed):
		return "malformed order from the portal, nothing was merged"
	default:
		return "sync failed"
	}
}

// window builds the update window from the date flags. Missing bounds stay
// zero and take the engine defaults.
func (o *RootOptions) window() (engine.Window, error) {
	var w engine.Window
	var err error
	if o.StartDate != "" {
		if w.Start, err = record.ParseDate(o.StartDate); err != nil {
			return w, err
		}
	}
	if o.EndDate != "" {
		if w.End, err = record.ParseDate(o.EndDate); err != nil {
			return w, err
		}
	}
	return w, nil
}

// syncReport is the printable result of an update or refresh.
type syncReport engine.Stats

func (r syncReport) String() string {
	if r.Window.Start.After(r.Window.End) {
		return "Already up to date."
	}
	return fmt.Sprintf("Fetched %d orders for %s: %d new, %d already stored; %d new products, %d lines.",
		r.Fetched, r.Window.String(), r.NewOrders, r.SkippedOrders, r.NewProducts, r.NewLines)
}

func (r syncReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Batch          string `json:"batch"`
		Start          string `json:"start"`
		End            string `json:"end"`
		Fetched        int    `json:"fetched"`
		NewOrders      int    `json:"new_orders"`
		SkippedOrders  int    `json:"skipped_orders"`
		NewProducts    int    `json:"new_products"`
		ReusedProducts int    `json:"reused_products"`
		NewLines       int    `json:"new_lines"`
	}{
		Batch:          r.BatchID,
		Start:          record.FormatDate(r.Window.Start),
		End:            record.FormatDate(r.Window.End),
		Fetched:        r.Fetched,
		NewOrders:      r.NewOrders,
		SkippedOrders:  r.SkippedOrders,
		NewProducts:    r.NewProducts,
		ReusedProducts: r.ReusedProducts,
		NewLines:       r.NewLines,
	})
}

// configureLogging installs the process logger: text on stderr, debug
// level with --verbose.
func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
