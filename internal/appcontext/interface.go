// Package appcontext provides the application context interface shared by
// all commands. The App in cmd/policytool/app implements it; tests use Mock.
package appcontext

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/agentstation/policytool/internal/config"
	"github.com/agentstation/policytool/internal/metrics"
	"github.com/agentstation/policytool/pkg/location"
	"github.com/agentstation/policytool/pkg/policysync"
	"github.com/agentstation/policytool/pkg/tagsync"
)

// Interface defines what commands need from the application.
//
// Commands accept this interface rather than the concrete App so that
// remote services can be replaced by fakes in tests.
type Interface interface {
	// Logger returns the configured logger.
	Logger() *zerolog.Logger

	// OutputFormat returns the requested output format (table, json, yaml).
	OutputFormat() string

	// Out is where command results are printed.
	Out() io.Writer

	// FS is the filesystem tag, policy and cache files are read from.
	FS() afero.Fs

	// Environment returns the named environment of the config file.
	Environment(name string) (*config.Environment, error)

	// Catalog returns the metadata catalog client of env.
	Catalog(env *config.Environment) (tagsync.CatalogClient, error)

	// PolicyService returns the policy service client of env.
	PolicyService(env *config.Environment) (policysync.Client, error)

	// Locator returns the table location resolver of env. The connection
	// is closed on shutdown.
	Locator(ctx context.Context, env *config.Environment) (location.Locator, error)

	// Metrics returns the collectors of the current run.
	Metrics() *metrics.Metrics

	// Version returns the application version string.
	Version() string
}
