package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orderkeep/internal/config"
	"github.com/roach88/orderkeep/internal/engine"
)

// RootOptions holds the flags of the orderkeep command.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string
	Database   string

	Update    bool
	Refresh   bool
	Search    bool
	StartDate string
	EndDate   string

	// NewFetcher overrides the portal client (for testing).
	// If nil, a scraper.Client is built from the config.
	NewFetcher func(cfg config.Config) (engine.Fetcher, error)

	// Clock overrides the wall clock (for testing).
	Clock engine.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the orderkeep command.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the orderkeep command bound to opts.
// Test hooks set on opts survive flag parsing.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orderkeep",
		Short: "Keep an encrypted history of arbiko.pl orders",
		Long: `Keep an encrypted, searchable history of orders placed at arbiko.pl.

Orders are stored in a single encrypted snapshot file. Each run restores the
snapshot, performs one mode and writes the snapshot back, even when the mode
fails.

Modes (mutually exclusive):
  -u, --update   fetch orders between --start_date and --end_date
                 (default: the last 365 days)
  -r, --refresh  fetch orders placed after the newest stored order
  -s, --search   search stored orders interactively (default)

In search mode an 8-digit number or "dddd dddd" finds a catalog number
exactly; any other phrase matches each word against OEM numbers and
descriptions. Type "exit" to quit.

Example:
  orderkeep --update --start_date 2022-01-01 --end_date 2022-01-31
  orderkeep -r
  orderkeep --db ./orders.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.validateModes()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	})

	flags := cmd.Flags()
	flags.BoolVarP(&opts.Update, "update", "u", false, "update the database for a date range")
	flags.BoolVarP(&opts.Refresh, "refresh", "r", false, "fetch orders newer than the latest stored order")
	flags.BoolVarP(&opts.Search, "search", "s", false, "search stored orders (default)")
	flags.StringVar(&opts.StartDate, "start_date", "", "update start date, YYYY-MM-DD")
	flags.StringVar(&opts.EndDate, "end_date", "", "update end date, YYYY-MM-DD")
	flags.StringVar(&opts.Database, "db", "", "snapshot file path (overrides config)")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default "+config.DefaultPath+" if present)")

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	return cmd
}

// validateModes enforces that at most one mode is chosen and that date
// flags only come with --update.
func (o *RootOptions) validateModes() error {
	modes := 0
	for _, set := range []bool{o.Update, o.Refresh, o.Search} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return NewExitError(ExitCommandError, "--update, --refresh and --search are mutually exclusive")
	}
	if !o.Update && (o.StartDate != "" || o.EndDate != "") {
		return NewExitError(ExitCommandError, "--start_date and --end_date require --update")
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
