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

// Mock provides a mock implementation of Interface for testing.
// Each method can be customized by setting the corresponding field.
// If a field is nil, the method returns a default/zero value.
type Mock struct {
	LoggerFunc        func() *zerolog.Logger
	Format            string
	Output            io.Writer
	Filesystem        afero.Fs
	Environments      map[string]*config.Environment
	CatalogClient     tagsync.CatalogClient
	PolicyClient      policysync.Client
	LocatorImpl       location.Locator
	MetricsCollectors *metrics.Metrics
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns Format, JSON when unset.
func (m *Mock) OutputFormat() string {
	if m.Format == "" {
		return "json"
	}
	return m.Format
}

// Out returns Output or io.Discard.
func (m *Mock) Out() io.Writer {
	if m.Output == nil {
		return io.Discard
	}
	return m.Output
}

// FS returns Filesystem, creating an in-memory one on first use.
func (m *Mock) FS() afero.Fs {
	if m.Filesystem == nil {
		m.Filesystem = afero.NewMemMapFs()
	}
	return m.Filesystem
}

// Environment returns the named entry of Environments, or an empty
// environment with that name.
func (m *Mock) Environment(name string) (*config.Environment, error) {
	if env, ok := m.Environments[name]; ok {
		return env, nil
	}
	return &config.Environment{Name: name, Retries: 1}, nil
}

// Catalog returns CatalogClient.
func (m *Mock) Catalog(*config.Environment) (tagsync.CatalogClient, error) {
	return m.CatalogClient, nil
}

// PolicyService returns PolicyClient.
func (m *Mock) PolicyService(*config.Environment) (policysync.Client, error) {
	return m.PolicyClient, nil
}

// Locator returns LocatorImpl.
func (m *Mock) Locator(context.Context, *config.Environment) (location.Locator, error) {
	return m.LocatorImpl, nil
}

// Metrics returns MetricsCollectors, creating them on first use.
func (m *Mock) Metrics() *metrics.Metrics {
	if m.MetricsCollectors == nil {
		m.MetricsCollectors = metrics.New()
	}
	return m.MetricsCollectors
}

// Version returns "dev".
func (m *Mock) Version() string {
	return "dev"
}

// Ensure Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
