// Package config loads the environment definitions: service endpoints,
// credentials and template variables per target environment.
package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/agentstation/policytool/internal/transport"
	"github.com/agentstation/policytool/pkg/errors"
)

// EnvVar names the config file when --config is not given.
const EnvVar = "POLICYTOOL_CONFIG"

// Defaults applied to environments that leave the value unset.
const (
	DefaultRetries    = 1
	DefaultRetryDelay = 60 * time.Second
)

// Authentication methods.
const (
	AuthNone     = "none"
	AuthBasic    = "basic"
	AuthBearer   = "bearer"
	AuthHeader   = "header"
	AuthKerberos = "kerberos"
)

// File is the parsed config file.
type File struct {
	Path         string        `mapstructure:"-"`
	Environments []Environment `mapstructure:"environments" validate:"dive"`
}

// Environment holds the settings of one target environment.
type Environment struct {
	Name            string        `mapstructure:"name" validate:"required"`
	AtlasAPIURL     string        `mapstructure:"atlas_api_url" validate:"omitempty,url"`
	RangerAPIURL    string        `mapstructure:"ranger_api_url" validate:"omitempty,url"`
	MetastoreDSN    string        `mapstructure:"metastore_dsn"`
	Retries         int           `mapstructure:"retries" validate:"min=0"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"min=0"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout" validate:"min=0"`
	AtlasSearchMode string        `mapstructure:"atlas_search_mode" validate:"omitempty,oneof=contains startswith"`
	Auth            Auth          `mapstructure:"auth"`
	Variables       []Variable    `mapstructure:"variables" validate:"dive"`
}

// Auth selects how requests to the catalog and policy service are
// authenticated. Password and Token may reference environment variables
// as ${NAME}; .env files are loaded first.
type Auth struct {
	Method    string `mapstructure:"method" validate:"omitempty,oneof=none basic bearer header kerberos"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Token     string `mapstructure:"token"`
	Header    string `mapstructure:"header"`
	Krb5Conf  string `mapstructure:"krb5_conf"`
	Keytab    string `mapstructure:"keytab"`
	Principal string `mapstructure:"principal"`
	Realm     string `mapstructure:"realm"`
	CCache    string `mapstructure:"ccache"`
	SPN       string `mapstructure:"spn"`
}

// Variable is a template variable.
type Variable struct {
	Name  string `mapstructure:"name" validate:"required"`
	Value any    `mapstructure:"value"`
}

// SearchPaths returns the default config locations, most specific first.
func SearchPaths() []string {
	var paths []string
	if p := os.Getenv(EnvVar); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "policytool", "config.json"))
	}
	return append(paths, "/etc/policytool/config.json")
}

// Find returns explicit when set, else the first existing search path.
func Find(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.NewConfigError("config", "no config file found, tried "+strings.Join(SearchPaths(), ", "), nil)
}

// Load reads the config file at path, or the first default location when
// path is empty. JSON and YAML files are accepted.
func Load(path string) (*File, error) {
	loadEnvFiles()

	path, err := Find(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError("config", "cannot read "+path, err)
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return nil, errors.NewConfigError("config", "cannot decode "+path, err)
	}
	file.Path = path

	raw, _ := v.Get("environments").([]any)
	for i := range file.Environments {
		file.Environments[i].applyDefaults(hasKey(raw, i, "retries"))
	}
	if err := validate(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// Environment returns the named environment.
func (f *File) Environment(name string) (*Environment, error) {
	for i := range f.Environments {
		if f.Environments[i].Name == name {
			return &f.Environments[i], nil
		}
	}
	return nil, errors.NewConfigError("config", fmt.Sprintf("environment %q not found in %s", name, f.Path), nil)
}

// hasKey reports whether the i-th raw environment sets key, so that an
// explicit zero is kept.
func hasKey(raw []any, i int, key string) bool {
	if i >= len(raw) {
		return false
	}
	m, ok := raw[i].(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

func (e *Environment) applyDefaults(retriesSet bool) {
	if !retriesSet {
		e.Retries = DefaultRetries
	}
	if e.RetryDelay == 0 {
		e.RetryDelay = DefaultRetryDelay
	}
	if e.HTTPTimeout == 0 {
		e.HTTPTimeout = transport.DefaultHTTPTimeout
	}
	if e.Auth.Method == "" {
		e.Auth.Method = AuthKerberos
	}
	e.Auth.Password = os.ExpandEnv(e.Auth.Password)
	e.Auth.Token = os.ExpandEnv(e.Auth.Token)
}

// VariableMap returns the template variables as a lookup layer.
func (e *Environment) VariableMap() map[string]any {
	vars := make(map[string]any, len(e.Variables))
	for _, v := range e.Variables {
		vars[v.Name] = v.Value
	}
	return vars
}

// Require fails when one of the named settings is empty.
func (e *Environment) Require(settings ...string) error {
	values := map[string]string{
		"atlas_api_url":  e.AtlasAPIURL,
		"ranger_api_url": e.RangerAPIURL,
		"metastore_dsn":  e.MetastoreDSN,
	}
	var missing []string
	for _, s := range settings {
		if values[s] == "" {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigError("config",
			fmt.Sprintf("environment %q is missing %s", e.Name, strings.Join(missing, ", ")), nil)
	}
	return nil
}

// HTTPClient builds the transport for a service of this environment.
func (e *Environment) HTTPClient(service string, logger *zerolog.Logger) (*transport.Client, error) {
	opts := []transport.Option{transport.WithTimeout(e.HTTPTimeout)}
	if logger != nil {
		opts = append(opts, transport.WithLogger(logger))
	}
	switch e.Auth.Method {
	case AuthNone:
	case AuthBasic:
		opts = append(opts, transport.WithAuth(&transport.BasicAuth{Username: e.Auth.Username, Password: e.Auth.Password}))
	case AuthBearer:
		opts = append(opts, transport.WithAuth(&transport.BearerAuth{Token: e.Auth.Token}))
	case AuthHeader:
		opts = append(opts, transport.WithAuth(&transport.HeaderAuth{Header: e.Auth.Header, Value: e.Auth.Token}))
	case AuthKerberos:
		doer, err := transport.NewKerberosDoer(e.Auth.Kerberos(), &http.Client{})
		if err != nil {
			return nil, err
		}
		opts = append(opts, transport.WithDoer(doer))
	default:
		return nil, errors.NewConfigError("config", fmt.Sprintf("unknown auth method %q", e.Auth.Method), nil)
	}
	return transport.New(service, opts...), nil
}

// Kerberos returns the SPNEGO settings.
func (a Auth) Kerberos() transport.KerberosConfig {
	krb5Conf := a.Krb5Conf
	if krb5Conf == "" {
		krb5Conf = "/etc/krb5.conf"
	}
	ccache := a.CCache
	if ccache == "" && a.Keytab == "" {
		ccache = os.Getenv("KRB5CCNAME")
		ccache = strings.TrimPrefix(ccache, "FILE:")
	}
	return transport.KerberosConfig{
		Krb5Conf:  krb5Conf,
		Keytab:    a.Keytab,
		Principal: a.Principal,
		Realm:     a.Realm,
		CCache:    ccache,
		SPN:       a.SPN,
	}
}

func validate(f *File) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.Struct(f); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewConfigError("config",
				fmt.Sprintf("invalid %s in %s: failed %q", fe.Namespace(), f.Path, fe.Tag()), err)
		}
		return errors.NewConfigError("config", "invalid "+f.Path, err)
	}
	return nil
}

// loadEnvFiles loads .env then .env.local; missing files are ignored.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
