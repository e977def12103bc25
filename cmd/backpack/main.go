package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"backpack/internal/platform/config"
	"backpack/internal/platform/logger"
	id "backpack/pkg/domain"
	"backpack/pkg/requestcontext"
)

// Output formats.
const (
	formatJSON = "json"
	formatText = "text"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	envFile string
	store   string
	db      string
	as      string
	format  string

	stdout io.Writer
	stderr io.Writer
}

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "backpack",
		Short: "Append-only purchase ledger with per-backpack category scores",
		Long: `backpack records purchases against issued backpacks, keeps a running
score per terpene category and renders each backpack's metadata document.

Configuration comes from BACKPACK_* environment variables, an optional
.env file and the flags below. BACKPACK_ADMIN is required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.format {
			case formatJSON, formatText:
			default:
				return fmt.Errorf("unknown format %q (want json or text)", opts.format)
			}
			return loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading BACKPACK_* variables")
	flags.StringVar(&opts.store, "store", "", "Store backend: memory, sqlite or postgres (overrides BACKPACK_STORE)")
	flags.StringVar(&opts.db, "db", "", "SQLite path or Postgres URL for the selected store")
	flags.StringVar(&opts.as, "as", "", "Calling principal (defaults to the admin)")
	flags.StringVarP(&opts.format, "format", "o", formatText, "Output format: json or text")

	root.AddCommand(
		issueCmd(opts),
		transferCmd(opts),
		agentCmd(opts),
		imageCmd(opts),
		recordCmd(opts),
		countCmd(opts),
		itemCmd(opts),
		itemsCmd(opts),
		topCmd(opts),
		scoresCmd(opts),
		renderCmd(opts),
		verifyCmd(opts),
		replayCmd(opts),
		serveCmd(opts),
	)
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// config reads the environment and applies flag overrides.
func (o *rootOptions) config() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if o.db != "" {
		switch cfg.Store {
		case config.StorePostgres:
			cfg.DatabaseURL = o.db
		case config.StoreSQLite:
			cfg.SQLitePath = o.db
		default:
			return config.Config{}, fmt.Errorf("--db has no effect on the %s store", cfg.Store)
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run opens the app for one command invocation. Every invocation gets its
// own request id so emitted events can be correlated with logs.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(o.stderr, cfg.LogLevel, cfg.LogFormat)

	ctx := requestcontext.WithRequestID(cmd.Context(), uuid.NewString())
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(); err != nil {
		log.ErrorContext(ctx, "failed to close backends", "error", err)
	}
	return runErr
}

// caller resolves --as, falling back to the configured admin.
func (o *rootOptions) caller(a *app) (id.Principal, error) {
	if o.as == "" {
		return a.access.Admin(), nil
	}
	return id.ParsePrincipal(o.as)
}
