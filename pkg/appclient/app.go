// Package appclient is a client for MongoDB Atlas App Services. It
// authenticates end users against the App Services identity providers and
// issues authorized CRUD and aggregation operations against the hosted Data
// API, over plain HTTPS with no driver socket requirements.
//
// The hard guarantees live in the auth core: concurrent requests hitting an
// expired access token trigger exactly one token refresh, every authorized
// call retries at most once after a refresh, and an unrecoverable session
// failure evicts the session instead of looping.
//
// Real-time sync and change streams are out of scope.
package appclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oceanpad/atlasdata/pkg/dataapi"
	"github.com/oceanpad/atlasdata/pkg/storage"
	"github.com/oceanpad/atlasdata/pkg/transport"
)

// DefaultAuthBaseURL is the global App Services client API endpoint.
const DefaultAuthBaseURL = "https://services.cloud.mongodb.com/api/client/v2.0"

// Config configures an App. Only AppID is required.
type Config struct {
	// AppID is the App Services application id, e.g. "myapp-abcde".
	AppID string `validate:"required"`

	// Region pins the Data API to a deployment region as "<region>.<cloud>",
	// e.g. "us-east-1.aws". Empty means the global endpoint.
	Region string

	// AuthBaseURL overrides the authentication endpoint. Defaults to
	// DefaultAuthBaseURL.
	AuthBaseURL string `validate:"omitempty,url"`

	// DataBaseURL overrides the Data API endpoint wholesale. When empty the
	// URL is derived from AppID and Region.
	DataBaseURL string `validate:"omitempty,url"`

	// Timeout bounds each request of the default transport. Ignored when
	// Sender is set.
	Timeout time.Duration

	// Logger receives debug/warn logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Sender delivers HTTP requests. Defaults to transport.NewClient.
	Sender transport.Sender

	// Storage persists sessions across restarts. Defaults to an in-memory
	// store, i.e. no persistence.
	Storage storage.Storage

	// Metrics receives client telemetry. Nil disables collection.
	Metrics Metrics
}

var validateConfig = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) authBaseURL() string {
	if c.AuthBaseURL != "" {
		return c.AuthBaseURL
	}
	return DefaultAuthBaseURL
}

func (c *Config) dataBaseURL() string {
	if c.DataBaseURL != "" {
		return c.DataBaseURL
	}
	region := ""
	if c.Region != "" {
		region = c.Region + "."
	}
	return fmt.Sprintf("https://%sdata.mongodb-api.com/app/%s/endpoint/data/v1", region, c.AppID)
}

// App is the entry point: it composes the credential providers, the token
// store, the auth coordinator and the authorized-request pipeline behind a
// small façade. Multiple independent App instances can coexist in one
// process; there is no shared global state.
//
// All methods are safe for concurrent use.
type App struct {
	cfg      Config
	coord    *authCoordinator
	pipeline *requestPipeline
}

// New creates an App. If cfg.Storage holds a session persisted by a previous
// run, the App starts logged in as that user.
func New(cfg Config) (*App, error) {
	if err := validateConfig.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("appclient: invalid config: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sender == nil {
		cfg.Sender = transport.NewClient(cfg.Timeout)
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemory()
	}

	store := newTokenStore(cfg.Storage, cfg.AppID, cfg.Logger)
	api := &authAPI{
		sender:  cfg.Sender,
		baseURL: cfg.authBaseURL(),
		appID:   cfg.AppID,
	}
	coord := newAuthCoordinator(store, api, cfg.Logger, cfg.Metrics)
	coord.restore(context.Background())

	return &App{
		cfg:   cfg,
		coord: coord,
		pipeline: &requestPipeline{
			sender:  cfg.Sender,
			coord:   coord,
			store:   store,
			dataURL: cfg.dataBaseURL(),
			logger:  cfg.Logger,
			metrics: cfg.Metrics,
		},
	}, nil
}

// Login authenticates with the given credentials and returns the user.
// While a login is already in flight, concurrent calls attach to it and
// receive its outcome.
func (a *App) Login(ctx context.Context, creds Credentials) (*User, error) {
	return a.coord.Login(ctx, creds)
}

// Logout clears the local session and best-effort invalidates it server
// side. Logging out twice is not an error.
func (a *App) Logout(ctx context.Context) error {
	return a.coord.Logout(ctx)
}

// CurrentUser returns the logged-in user, if any.
func (a *App) CurrentUser() (*User, bool) {
	return a.coord.CurrentUser()
}

// Call executes a Data API operation through the authorized-request
// pipeline and returns the raw response body. Most callers use the typed
// surface via Database instead.
func (a *App) Call(ctx context.Context, op dataapi.Operation) ([]byte, error) {
	return a.pipeline.execute(ctx, op)
}

// Database returns a handle on a database within the given Atlas data
// source (typically "mongodb-atlas").
func (a *App) Database(dataSource, name string) *dataapi.Database {
	return dataapi.NewDatabase(a, dataSource, name)
}
