// Package app provides the application context and dependency management
// for the policytool CLI. Remote clients are created lazily, one per
// environment, and connections are closed on Shutdown.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/agentstation/policytool/internal/atlas"
	"github.com/agentstation/policytool/internal/cmd/output"
	"github.com/agentstation/policytool/internal/config"
	"github.com/agentstation/policytool/internal/metastore"
	"github.com/agentstation/policytool/internal/metrics"
	"github.com/agentstation/policytool/internal/ranger"
	"github.com/agentstation/policytool/pkg/errors"
	"github.com/agentstation/policytool/pkg/location"
	"github.com/agentstation/policytool/pkg/policysync"
	"github.com/agentstation/policytool/pkg/tagsync"
)

// App holds the configuration and services of one policytool run.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	settings *Settings
	logger   *zerolog.Logger
	fs       afero.Fs
	out      io.Writer
	metrics  *metrics.Metrics

	mu       sync.Mutex
	file     *config.File
	locators map[string]location.Locator
	dbs      []*sqlx.DB
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version:  version,
		commit:   commit,
		date:     date,
		builtBy:  builtBy,
		settings: LoadSettings(),
		fs:       afero.NewOsFs(),
		out:      os.Stdout,
		metrics:  metrics.New(),
		locators: make(map[string]location.Locator),
	}

	logger := NewLogger(app.settings)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Settings returns the global CLI settings.
func (a *App) Settings() *Settings {
	return a.settings
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the requested output format, table on a terminal
// and JSON otherwise when none was given.
func (a *App) OutputFormat() string {
	return string(output.DetectFormat(a.settings.Format))
}

// Out returns where results are printed.
func (a *App) Out() io.Writer {
	return a.out
}

// FS returns the filesystem source files are read from.
func (a *App) FS() afero.Fs {
	return a.fs
}

// Metrics returns the collectors of this run.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Environment returns the named environment, loading the config file on
// first use.
func (a *App) Environment(name string) (*config.Environment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		file, err := config.Load(a.settings.ConfigFile)
		if err != nil {
			return nil, err
		}
		a.logger.Debug().Str("path", file.Path).Int("environments", len(file.Environments)).Msg("Loaded config")
		a.file = file
	}
	return a.file.Environment(name)
}

// Catalog returns a metadata catalog client for env.
func (a *App) Catalog(env *config.Environment) (tagsync.CatalogClient, error) {
	if err := env.Require("atlas_api_url"); err != nil {
		return nil, err
	}
	mode, err := atlas.ParseSearchMode(env.AtlasSearchMode)
	if err != nil {
		return nil, err
	}
	httpClient, err := env.HTTPClient("atlas", a.logger)
	if err != nil {
		return nil, err
	}
	return atlas.New(env.AtlasAPIURL, httpClient, atlas.WithSearchMode(mode), atlas.WithLogger(a.logger)), nil
}

// PolicyService returns a policy service client for env.
func (a *App) PolicyService(env *config.Environment) (policysync.Client, error) {
	if err := env.Require("ranger_api_url"); err != nil {
		return nil, err
	}
	httpClient, err := env.HTTPClient("ranger", a.logger)
	if err != nil {
		return nil, err
	}
	return ranger.New(env.RangerAPIURL, httpClient), nil
}

// Locator returns the metastore client of env, connecting on first use.
func (a *App) Locator(ctx context.Context, env *config.Environment) (location.Locator, error) {
	if err := env.Require("metastore_dsn"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.locators[env.Name]; ok {
		return l, nil
	}
	client, db, err := metastore.Open(ctx, env.MetastoreDSN)
	if err != nil {
		return nil, err
	}
	a.dbs = append(a.dbs, db)
	a.locators[env.Name] = client
	return client, nil
}

// Shutdown closes the connections opened during the run.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	for _, db := range a.dbs {
		err = multierr.Append(err, db.Close())
	}
	a.dbs = nil
	a.locators = make(map[string]location.Locator)
	if err != nil {
		return errors.WrapIO("close", "metastore", err)
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithSettings replaces the settings read from the environment.
func WithSettings(settings *Settings) Option {
	return func(a *App) error {
		a.settings = settings
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithFS sets the filesystem source files are read from.
func WithFS(fs afero.Fs) Option {
	return func(a *App) error {
		a.fs = fs
		return nil
	}
}

// WithOutput sets where results are printed.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// WithConfigFile sets an already loaded config file.
func WithConfigFile(file *config.File) Option {
	return func(a *App) error {
		a.file = file
		return nil
	}
}
