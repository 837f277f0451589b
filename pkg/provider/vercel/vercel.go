// Package vercel implements provider.Provider on top of the Vercel Sandbox
// REST API.
//
// Vercel sandboxes boot from a git repository or from a snapshot image and
// cannot be paused, so Connect only attaches to sandboxes that are still
// running. The API has no per-sandbox metadata: Info.Metadata is always
// empty and metadata filters match nothing.
package vercel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

const providerName = "vercel"

// DefaultWorkdir is where git sources are checked out inside a sandbox.
const DefaultWorkdir = "/vercel/sandbox"

// Ensure Provider implements provider.Provider.
var _ provider.Provider = (*Provider)(nil)

// Config holds the Vercel adapter configuration.
type Config struct {
	// Token is a Vercel access token or OIDC token. When it is an OIDC
	// token, TeamID and ProjectID default to its owner_id and project_id
	// claims.
	Token     string
	TeamID    string
	ProjectID string

	// BaseURL overrides the API root. Default: DefaultBaseURL.
	BaseURL string

	// Workdir is the default working directory for commands and relative
	// file writes. Default: DefaultWorkdir.
	Workdir string

	// PollInterval and WaitTimeout control waiting for a new sandbox to
	// reach running. Defaults: 1s and 5m.
	PollInterval time.Duration
	WaitTimeout  time.Duration

	// RequestTimeout bounds each API call except command waits and
	// snapshots. Default: 30s.
	RequestTimeout time.Duration

	// CommandTimeout bounds waiting for a command to exit and for a snapshot
	// to complete. Zero leaves them bounded only by the caller's context,
	// which for provisioning is the provision timeout.
	CommandTimeout time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, a client without a client-wide timeout is used; deadlines come
	// from RequestTimeout and CommandTimeout.
	HTTPClient *http.Client

	// Now is the clock used to check token expiry. Default: time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Workdir == "" {
		c.Workdir = DefaultWorkdir
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = 5 * time.Minute
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Provider is a Vercel-backed sandbox provider.
type Provider struct {
	api          *client
	workdir      string
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// New validates cfg, resolves the team and project scope, and returns a
// Provider.
func New(cfg Config) (*Provider, error) {
	cfg.applyDefaults()

	teamID, projectID, err := resolveScope(cfg.Token, cfg.TeamID, cfg.ProjectID, cfg.Now())
	if err != nil {
		return nil, err
	}

	return &Provider{
		api: &client{
			baseURL:   cfg.BaseURL,
			token:     cfg.Token,
			teamID:    teamID,
			projectID: projectID,
			http:      cfg.HTTPClient,

			requestTimeout: cfg.RequestTimeout,
			commandTimeout: cfg.CommandTimeout,
		},
		workdir:      cfg.Workdir,
		pollInterval: cfg.PollInterval,
		waitTimeout:  cfg.WaitTimeout,
	}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return providerName }

// List implements provider.Provider.
func (p *Provider) List(ctx context.Context, filter provider.ListFilter) ([]provider.Info, error) {
	sandboxes, err := p.api.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}
	if len(filter.Metadata) > 0 {
		return nil, nil
	}

	var out []provider.Info
	for _, sb := range sandboxes {
		status := sb.Status.toProvider()
		if filter.State != "" && status != filter.State {
			continue
		}
		out = append(out, provider.Info{
			ID:        sb.ID,
			Status:    status,
			StartedAt: time.UnixMilli(sb.CreatedAt),
		})
	}
	return out, nil
}

// Get implements provider.Provider.
func (p *Provider) Get(ctx context.Context, id string) (provider.Sandbox, error) {
	resp, err := p.api.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.wrap(resp), nil
}

// Connect implements provider.Provider.
func (p *Provider) Connect(ctx context.Context, id string) (provider.Sandbox, error) {
	resp, err := p.api.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp.Sandbox.Status != statusRunning {
		return nil, fmt.Errorf("connect %s: sandbox is %s", id, resp.Sandbox.Status)
	}
	return p.wrap(resp), nil
}

// Create implements provider.Provider. It returns once the sandbox reports
// running.
func (p *Provider) Create(ctx context.Context, opts provider.CreateOptions) (provider.Sandbox, error) {
	if err := opts.Source.Validate(); err != nil {
		return nil, err
	}

	req := createRequest{
		ProjectID: p.api.projectID,
		Runtime:   opts.Runtime,
		Timeout:   opts.Timeout.Milliseconds(),
		Ports:     opts.Ports,
		Env:       opts.Env,
	}
	switch opts.Source.Kind {
	case provider.SourceGit:
		req.Source = &sourceBody{Type: "git", URL: opts.Source.URL, Revision: opts.Source.Revision}
	case provider.SourceSnapshot:
		req.Source = &sourceBody{Type: "snapshot", SnapshotID: opts.Source.SnapshotID}
	default:
		return nil, fmt.Errorf("vercel sandboxes cannot boot from a %s source", opts.Source.Kind)
	}

	created, err := p.api.create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	slog.Debug("vercel sandbox created", "sandbox_id", created.Sandbox.ID, "status", created.Sandbox.Status)

	if created.Sandbox.Status == statusRunning {
		return p.wrap(created), nil
	}

	running, err := p.waitForRunning(ctx, created.Sandbox.ID)
	if err != nil {
		return nil, err
	}
	return p.wrap(running), nil
}

// waitForRunning polls the sandbox until it is running, enters a terminal
// state, or the wait timeout expires.
func (p *Provider) waitForRunning(ctx context.Context, id string) (*sandboxResponse, error) {
	var last *sandboxResponse
	err := wait.PollUntilContextTimeout(ctx, p.pollInterval, p.waitTimeout, true, func(ctx context.Context) (bool, error) {
		resp, err := p.api.get(ctx, id)
		if err != nil {
			slog.Debug("waiting for vercel sandbox", "sandbox_id", id, "error", err.Error())
			return false, nil
		}
		last = resp
		switch resp.Sandbox.Status {
		case statusRunning:
			return true, nil
		case statusFailed, statusError, statusStopped:
			return false, fmt.Errorf("sandbox %s entered %s state", id, resp.Sandbox.Status)
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for sandbox %s: %w", id, err)
	}
	return last, nil
}

func (p *Provider) wrap(resp *sandboxResponse) *Sandbox {
	return &Sandbox{
		p:      p,
		id:     resp.Sandbox.ID,
		status: resp.Sandbox.Status.toProvider(),
		routes: resp.Routes,
	}
}
