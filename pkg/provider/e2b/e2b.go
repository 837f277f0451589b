// Package e2b implements provider.Provider on top of the E2B sandbox API.
//
// E2B sandboxes boot from prebuilt templates and carry a metadata map, which
// is how exercise sandboxes are found again. Commands and file writes go to
// the envd daemon running inside each sandbox.
package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/debug"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

const providerName = "e2b"

const (
	// DefaultBaseURL is the E2B control plane API root.
	DefaultBaseURL = "https://api.e2b.dev"
	// DefaultDomain is the domain sandbox ports are exposed under.
	DefaultDomain = "e2b.app"

	envdPort = 49983
)

// Ensure Provider implements provider.Provider.
var _ provider.Provider = (*Provider)(nil)

// Config holds the E2B adapter configuration.
type Config struct {
	APIKey string

	// BaseURL overrides the control plane API root. Default: DefaultBaseURL.
	BaseURL string

	// Domain is the sandbox host domain. Default: DefaultDomain.
	Domain string

	// EnvdURL overrides the envd address for every sandbox. Tests only;
	// normally it is derived from the sandbox id and domain.
	EnvdURL string

	// ConnectTimeout is the lifetime extension requested when connecting
	// to an existing sandbox. Default: 15m.
	ConnectTimeout time.Duration

	// RequestTimeout bounds control plane calls and file uploads. Process
	// runs are bounded only by the caller's context. Default: 60s.
	RequestTimeout time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, a client without a client-wide timeout is used.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 15 * time.Minute
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}

// Provider is an E2B-backed sandbox provider.
type Provider struct {
	cfg Config
}

// New returns a Provider for cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("e2b API key not set. Set E2B_API_KEY")
	}
	cfg.applyDefaults()
	return &Provider{cfg: cfg}, nil
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return providerName }

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

func (p *Provider) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() { observability.ObserveProvider(providerName, op, start, err) }()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		r = bytes.NewReader(data)
		debug.Body("providers", providerName+" request", data)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	u := p.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", p.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	debug.Log("providers", providerName+" call", "op", op, "method", method, "path", path, "status", resp.StatusCode)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func notFound(err error, id string) error {
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return fmt.Errorf("sandbox %s: %w", id, provider.ErrNotFound)
	}
	return err
}

// metadataQuery encodes a metadata filter the way the list endpoint
// expects it: a URL-encoded "k=v&k2=v2" string.
func metadataQuery(md map[string]string) string {
	q := url.Values{}
	for k, v := range md {
		q.Set(k, v)
	}
	return q.Encode()
}

// List implements provider.Provider. The metadata filter is applied by the
// API and again locally.
func (p *Provider) List(ctx context.Context, filter provider.ListFilter) ([]provider.Info, error) {
	query := url.Values{}
	if filter.State != "" {
		query.Set("state", string(filter.State))
	}
	if len(filter.Metadata) > 0 {
		query.Set("metadata", metadataQuery(filter.Metadata))
	}

	var listed []sandboxDetail
	if err := p.do(ctx, "list", http.MethodGet, "/v2/sandboxes", query, nil, &listed); err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}

	out := make([]provider.Info, 0, len(listed))
	for _, sb := range listed {
		status := toStatus(sb.State)
		if filter.State != "" && status != filter.State {
			continue
		}
		if !provider.MatchesMetadata(sb.Metadata, filter.Metadata) {
			continue
		}
		out = append(out, provider.Info{
			ID:        sb.SandboxID,
			Status:    status,
			Metadata:  sb.Metadata,
			StartedAt: sb.StartedAt,
		})
	}
	return out, nil
}

// Get implements provider.Provider.
func (p *Provider) Get(ctx context.Context, id string) (provider.Sandbox, error) {
	var detail sandboxDetail
	if err := p.do(ctx, "get", http.MethodGet, "/sandboxes/"+url.PathEscape(id), nil, nil, &detail); err != nil {
		return nil, notFound(err, id)
	}
	return &Sandbox{
		p:           p,
		id:          detail.SandboxID,
		status:      toStatus(detail.State),
		metadata:    detail.Metadata,
		domain:      p.domain(detail.Domain),
		accessToken: detail.EnvdAccessToken,
	}, nil
}

// Create implements provider.Provider. Only template sources are supported.
func (p *Provider) Create(ctx context.Context, opts provider.CreateOptions) (provider.Sandbox, error) {
	if err := opts.Source.Validate(); err != nil {
		return nil, err
	}
	if opts.Source.Kind != provider.SourceTemplate {
		return nil, fmt.Errorf("e2b sandboxes cannot boot from a %s source", opts.Source.Kind)
	}

	req := createRequest{
		TemplateID: opts.Source.TemplateID,
		Timeout:    int(opts.Timeout.Seconds()),
		Metadata:   opts.Metadata,
		EnvVars:    opts.Env,
		Secure:     true,
	}
	var created sandboxResponse
	if err := p.do(ctx, "create", http.MethodPost, "/sandboxes", nil, req, &created); err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	slog.Debug("e2b sandbox created", "sandbox_id", created.SandboxID, "template", created.TemplateID)

	return &Sandbox{
		p:           p,
		id:          created.SandboxID,
		status:      provider.StatusRunning,
		metadata:    opts.Metadata,
		domain:      p.domain(created.Domain),
		accessToken: created.EnvdAccessToken,
	}, nil
}

// Connect implements provider.Provider. Paused sandboxes are resumed.
func (p *Provider) Connect(ctx context.Context, id string) (provider.Sandbox, error) {
	req := connectRequest{Timeout: int(p.cfg.ConnectTimeout.Seconds())}
	var connected sandboxResponse
	if err := p.do(ctx, "connect", http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/connect", nil, req, &connected); err != nil {
		return nil, notFound(err, id)
	}
	if connected.SandboxID == "" {
		connected.SandboxID = id
	}
	return &Sandbox{
		p:           p,
		id:          connected.SandboxID,
		status:      provider.StatusRunning,
		domain:      p.domain(connected.Domain),
		accessToken: connected.EnvdAccessToken,
	}, nil
}

func (p *Provider) domain(fromAPI string) string {
	if fromAPI != "" {
		return fromAPI
	}
	return p.cfg.Domain
}

func (p *Provider) envdURL(sandboxID, domain string) string {
	if p.cfg.EnvdURL != "" {
		return strings.TrimSuffix(p.cfg.EnvdURL, "/")
	}
	return fmt.Sprintf("https://%d-%s.%s", envdPort, sandboxID, domain)
}
