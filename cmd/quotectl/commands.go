package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quote-manager/internal/app"
	"github.com/jsamuelsen/quote-manager/internal/bootstrap"
	"github.com/jsamuelsen/quote-manager/internal/domain"
	"github.com/jsamuelsen/quote-manager/internal/platform/config"
	"github.com/jsamuelsen/quote-manager/internal/platform/logging"
)

// defaultListLimit bounds `list` output when --limit is not given.
const defaultListLimit = 50

type rootOptions struct {
	configDir string
	profile   string
	dbPath    string
	remoteURL string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "quotectl",
		Short:         "Manage the local quote collection",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configDir, "config-dir", config.DefaultConfigDir, "directory holding base.yaml and profile files")
	flags.StringVar(&opts.profile, "profile", config.ProfileFromEnv(), "configuration profile")
	flags.StringVar(&opts.dbPath, "db", "", "override the SQLite database path")
	flags.StringVar(&opts.remoteURL, "remote", "", "override the remote source base URL")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		newRandomCmd(opts),
		newListCmd(opts),
		newCategoriesCmd(opts),
		newCategoryCmd(opts),
		newAddCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newSyncCmd(opts),
	)

	return root
}

// open loads configuration, applies flag overrides and loads the collection.
// The caller must Close the returned components.
func (o *rootOptions) open(cmd *cobra.Command) (*bootstrap.Components, error) {
	cfg, err := config.LoadFrom(o.configDir, o.profile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if o.dbPath != "" {
		cfg.Storage.Driver = config.StorageDriverSQLite
		cfg.Storage.Path = o.dbPath
	}

	if o.remoteURL != "" {
		cfg.Services.Remote.BaseURL = o.remoteURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Format = "pretty"
	logCfg.Level = "warn"

	if o.verbose {
		logCfg.Level = "debug"
	}

	logger := logging.NewWithWriter(logCfg, cmd.ErrOrStderr())

	comps, err := bootstrap.Build(cmd.Context(), cfg, logger, bootstrap.Options{
		Registerer: prometheus.NewRegistry(),
		UserAgent:  "quotectl/" + Version,
	})
	if err != nil {
		return nil, err
	}

	if err := comps.Store.Load(cmd.Context()); err != nil {
		_ = comps.Close()
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	return comps, nil
}

// withComponents opens the components for the duration of fn.
func (o *rootOptions) withComponents(cmd *cobra.Command, fn func(*bootstrap.Components) error) (err error) {
	comps, err := o.open(cmd)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := comps.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing storage: %w", closeErr)
		}
	}()

	return fn(comps)
}

func printQuote(w io.Writer, q domain.Quote) {
	fmt.Fprintf(w, "#%d [%s] %s\n", q.IDValue(), q.Category, q.Text)
}

func newRandomCmd(opts *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Print a random quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				q, err := c.Service.RandomQuote(cmd.Context(), category)
				if err != nil {
					return err
				}

				printQuote(cmd.OutOrStdout(), q)

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "category to draw from (defaults to the saved selection)")

	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		category string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quotes in collection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				quotes, err := c.Service.ListQuotes(cmd.Context(), app.ListQuery{
					Category: category,
					Limit:    limit,
				})
				if err != nil {
					return err
				}

				more := len(quotes) > limit
				if more {
					quotes = quotes[:limit]
				}

				for _, q := range quotes {
					printQuote(cmd.OutOrStdout(), q)
				}

				if more {
					fmt.Fprintln(cmd.ErrOrStderr(), "(more quotes available, raise --limit)")
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", app.CategoryAll, "category filter")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "maximum number of quotes")

	return cmd
}

func newCategoriesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List distinct categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				for _, category := range c.Service.Categories(cmd.Context()) {
					fmt.Fprintln(cmd.OutOrStdout(), category)
				}

				return nil
			})
		},
	}
}

func newCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "category [name]",
		Short: "Show or change the selected category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				if len(args) == 1 {
					if err := c.Service.SetSelectedCategory(cmd.Context(), args[0]); err != nil {
						return err
					}
				}

				selected, err := c.Service.SelectedCategory(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), selected)

				return nil
			})
		},
	}
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				q, err := c.Service.AddQuote(cmd.Context(), args[0], category)
				if err != nil {
					return err
				}

				printQuote(cmd.OutOrStdout(), q)

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "category of the new quote")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import quotes from a JSON array, all or nothing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading import file: %w", err)
			}

			var batch []domain.Quote
			if err := json.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("decoding import file: %w", err)
			}

			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				result, err := c.Service.ImportQuotes(cmd.Context(), batch)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "imported %d quotes, %d total\n", result.Imported, result.Total)

				return nil
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the collection as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				data, err := c.Service.ExportQuotes(cmd.Context())
				if err != nil {
					return err
				}

				if out == "" || out == "-" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}

				if err := os.WriteFile(out, data, 0o600); err != nil {
					return fmt.Errorf("writing export: %w", err)
				}

				c.Logger.Debug("export written", slog.String("path", out))

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")

	return cmd
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass against the remote source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(c *bootstrap.Components) error {
				result, err := c.Service.Sync(cmd.Context())
				if err != nil {
					return err
				}

				if !result.Changed() {
					fmt.Fprintln(cmd.OutOrStdout(), "already up to date")
					return nil
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d added, %d updated, %d rejected)\n",
					app.SyncMessage(result), result.AddedCount, result.UpdatedCount, result.Rejected)

				return nil
			})
		},
	}
}
