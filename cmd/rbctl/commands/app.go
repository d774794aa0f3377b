package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/rbkit/pkg/auth"
	"github.com/openfroyo/rbkit/pkg/config"
	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/policy"
	"github.com/openfroyo/rbkit/pkg/providers/memory"
	"github.com/openfroyo/rbkit/pkg/providers/rest"
	"github.com/openfroyo/rbkit/pkg/resource"
	"github.com/openfroyo/rbkit/pkg/stores"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

var errAccessDenied = errors.New("access denied")

// Provider types accepted in settings.
const (
	ProviderREST   = "rest"
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
)

// Settings is the rbctl settings file.
type Settings struct {
	// Definitions are the resource definition files or directories.
	Definitions []string `yaml:"definitions" validate:"required,min=1"`

	// Providers are the data providers definitions refer to by name.
	Providers map[string]ProviderSettings `yaml:"providers" validate:"required,dive"`

	// Store is the local database holding the session and sqlite records.
	Store stores.Config `yaml:"store"`

	// Auth enables login and capability checks when set.
	Auth *auth.Config `yaml:"auth"`

	// Policies are Rego files or directories added to the built-in policies.
	Policies []string `yaml:"policies"`

	// PolicyData is exposed to policies as data.
	PolicyData map[string]any `yaml:"policy_data"`

	// Telemetry overrides the defaults of defaultTelemetry.
	Telemetry *telemetry.Config `yaml:"telemetry"`

	dir string
}

// ProviderSettings configures one data provider.
type ProviderSettings struct {
	Type       string                      `yaml:"type" validate:"required,oneof=rest memory sqlite"`
	URL        string                      `yaml:"url" validate:"required_if=Type rest,omitempty,url"`
	Key        string                      `yaml:"key"`
	Headers    map[string]string           `yaml:"headers"`
	Seed       map[string][]map[string]any `yaml:"seed"`
	UseSession bool                        `yaml:"use_session"`
}

// LoadSettings reads and validates the settings file at path. Relative
// paths in it are resolved against the file's directory.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Settings{Telemetry: defaultTelemetry()}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	s.dir = filepath.Dir(path)

	if s.Store.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		s.Store.Path = filepath.Join(home, ".rbctl", "rbctl.db")
	}
	if s.Store.Path != stores.MemoryPath {
		s.Store.Path = s.resolve(s.Store.Path)
	}
	for i, p := range s.Definitions {
		s.Definitions[i] = s.resolve(p)
	}
	for i, p := range s.Policies {
		s.Policies[i] = s.resolve(p)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on the '%s' rule", strings.TrimPrefix(e.Namespace(), "Settings."), e.Tag()))
			}
			return nil, fmt.Errorf("invalid settings %s: %s", path, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return &s, nil
}

// defaultTelemetry keeps the console quiet unless something goes wrong.
func defaultTelemetry() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "rbctl"
	cfg.Logging.Level = "warn"
	return cfg
}

func (s *Settings) resolve(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.dir, p)
}

// app holds everything a command works with.
type app struct {
	settings  *Settings
	tel       *telemetry.Telemetry
	store     *stores.SQLiteStore
	items     *stores.ItemStore
	providers map[string]engine.DataProvider
	loader    *config.Loader
	builder   *config.Builder
	manager   *resource.Manager
	policies  *policy.Engine
	auth      *auth.Provider
}

// openApp loads the settings named by the global flag and wires the
// providers, resources, policies and auth they describe.
func openApp(ctx context.Context) (*app, error) {
	s, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, s)
}

func newApp(ctx context.Context, s *Settings) (_ *app, err error) {
	a := &app{settings: s, providers: make(map[string]engine.DataProvider, len(s.Providers))}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	telCfg := s.Telemetry
	if telCfg == nil {
		telCfg = defaultTelemetry()
	}
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	if a.tel, err = telemetry.NewTelemetry(telCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if s.Store.Path != stores.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(s.Store.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if a.store, err = stores.Open(ctx, s.Store); err != nil {
		return nil, err
	}
	a.items = a.store.Items()

	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(a.tel.Tracer.Provider())),
	}
	for name, ps := range s.Providers {
		p, err := a.provider(ps, client)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		a.providers[name] = p
	}

	a.loader = config.NewLoader(a.tel)
	a.builder = config.NewBuilder(a.providers, config.WithTelemetry(a.tel))
	if a.manager, err = resource.NewManager(); err != nil {
		return nil, err
	}
	a.manager.SetTelemetry(a.tel)

	defs, err := a.loader.Load(ctx, s.Definitions)
	if err != nil {
		return nil, err
	}
	if _, err := a.builder.Apply(a.manager, defs); err != nil {
		return nil, err
	}

	if a.policies, err = policy.NewEngine(*a.tel.Logger.Zerolog(), policy.WithData(s.PolicyData)); err != nil {
		return nil, err
	}
	if len(s.Policies) > 0 {
		if err := a.policies.LoadPolicies(ctx, s.Policies); err != nil {
			return nil, err
		}
	}

	if s.Auth != nil {
		if a.auth, err = auth.New(*s.Auth, a.items, auth.WithAuthorizer(a.policies), auth.WithTelemetry(a.tel)); err != nil {
			return nil, fmt.Errorf("failed to initialize auth: %w", err)
		}
	}

	return a, nil
}

func (a *app) provider(ps ProviderSettings, client *http.Client) (engine.DataProvider, error) {
	switch ps.Type {
	case ProviderREST:
		opts := []rest.Option{rest.WithHTTPClient(client)}
		if ps.Key != "" {
			opts = append(opts, rest.WithKey(ps.Key))
		}
		for name, value := range ps.Headers {
			opts = append(opts, rest.WithHeader(name, value))
		}
		if ps.UseSession {
			opts = append(opts, rest.WithToken(rest.TokenFromStorage(a.items, auth.TokenKey)))
		}
		return rest.New(ps.URL, opts...), nil

	case ProviderMemory:
		var opts []memory.Option
		if ps.Key != "" {
			opts = append(opts, memory.WithKey(ps.Key))
		}
		p := memory.New(opts...)
		for path, records := range ps.Seed {
			recs := make([]engine.Record, len(records))
			for i, r := range records {
				recs[i] = r
			}
			if err := p.Seed(path, recs...); err != nil {
				return nil, err
			}
		}
		return p, nil

	case ProviderSQLite:
		var opts []stores.RecordOption
		if ps.Key != "" {
			opts = append(opts, stores.WithRecordKey(ps.Key))
		}
		return a.store.Records(opts...), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", ps.Type)
}

// context returns ctx carrying the app telemetry.
func (a *app) context(ctx context.Context) context.Context {
	return a.tel.WithContext(ctx)
}

// resource looks a registered resource up by name.
func (a *app) resource(name string) (*resource.Resource, error) {
	return a.manager.GetResourceByName(name)
}

// authorize checks that the logged in user may perform action on subject.
// Without auth settings every action is allowed.
func (a *app) authorize(ctx context.Context, action string, subject policy.Subject) error {
	if a.auth == nil {
		return nil
	}

	user, err := a.sessionUser(ctx)
	if err != nil {
		return err
	}

	ok, err := a.auth.Can(ctx, user, action, subject)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s on %s", errAccessDenied, action, subject.Resource)
	}
	return nil
}

// sessionUser returns the logged in user, or nil for anonymous callers.
func (a *app) sessionUser(ctx context.Context) (*engine.User, error) {
	user, err := a.auth.CheckAuth(ctx)
	if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrInvalidToken) {
		return nil, nil
	}
	return user, err
}

// Close releases the store and flushes telemetry.
func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(context.Background())
	}
}
