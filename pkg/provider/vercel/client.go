package vercel

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/debug"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

// DefaultBaseURL is the Vercel REST API root.
const DefaultBaseURL = "https://vercel.com/api"

// apiError is a non-2xx response from the Vercel API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// client is a thin wrapper over the Vercel Sandbox REST endpoints. Every
// call is scoped to one team and project.
type client struct {
	baseURL   string
	token     string
	teamID    string
	projectID string
	http      *http.Client

	requestTimeout time.Duration
	commandTimeout time.Duration
}

// longOps block until work inside the sandbox finishes.
var longOps = map[string]bool{"wait": true, "snapshot": true}

// withDeadline bounds one API call. Long operations get commandTimeout,
// which may be zero to defer entirely to ctx.
func (c *client) withDeadline(ctx context.Context, op string) (context.Context, context.CancelFunc) {
	d := c.requestTimeout
	if longOps[op] {
		d = c.commandTimeout
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (c *client) url(path string, query url.Values) string {
	q := url.Values{}
	q.Set("teamId", c.teamID)
	q.Set("project", c.projectID)
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return c.baseURL + path + "?" + q.Encode()
}

// do sends a request and decodes a JSON response into out. op names the
// call in provider metrics.
func (c *client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
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

	ctx, cancel := c.withDeadline(ctx, op)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), r)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	debug.Log("providers", providerName+" call", "op", op, "method", method, "path", path, "status", resp.StatusCode)
	return c.parse(resp, out)
}

func (c *client) parse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(body)}
	}
	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *client) create(ctx context.Context, req createRequest) (*sandboxResponse, error) {
	var result sandboxResponse
	if err := c.do(ctx, "create", http.MethodPost, "/v1/sandboxes", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) get(ctx context.Context, sandboxID string) (*sandboxResponse, error) {
	var result sandboxResponse
	if err := c.do(ctx, "get", http.MethodGet, "/v1/sandboxes/"+url.PathEscape(sandboxID), nil, nil, &result); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
			return nil, fmt.Errorf("get %s: %w", sandboxID, provider.ErrNotFound)
		}
		return nil, err
	}
	return &result, nil
}

func (c *client) list(ctx context.Context) ([]sandbox, error) {
	var result listResponse
	if err := c.do(ctx, "list", http.MethodGet, "/v1/sandboxes", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Sandboxes, nil
}

// runCommand starts a command and waits for it to exit, then collects its
// output from the log stream.
func (c *client) runCommand(ctx context.Context, sandboxID string, req commandRequest) (*provider.CommandResult, error) {
	base := "/v1/sandboxes/" + url.PathEscape(sandboxID) + "/cmd"

	var started commandResponse
	if err := c.do(ctx, "run", http.MethodPost, base, nil, req, &started); err != nil {
		return nil, err
	}

	var finished commandResponse
	wait := url.Values{"wait": {"true"}}
	if err := c.do(ctx, "wait", http.MethodGet, base+"/"+url.PathEscape(started.Command.ID), wait, nil, &finished); err != nil {
		return nil, err
	}
	if finished.Command.ExitCode == nil {
		return nil, fmt.Errorf("command %s finished without an exit code", started.Command.ID)
	}

	result := &provider.CommandResult{ExitCode: *finished.Command.ExitCode}
	stdout, stderr, err := c.logs(ctx, sandboxID, started.Command.ID)
	if err != nil {
		return nil, err
	}
	result.Stdout, result.Stderr = stdout, stderr
	return result, nil
}

func (c *client) logs(ctx context.Context, sandboxID, cmdID string) (string, string, error) {
	start := time.Now()
	ctx, cancel := c.withDeadline(ctx, "logs")
	defer cancel()
	path := "/v1/sandboxes/" + url.PathEscape(sandboxID) + "/cmd/" + url.PathEscape(cmdID) + "/logs"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, nil), nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveProvider(providerName, "logs", start, err)
		return "", "", fmt.Errorf("logs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &apiError{Status: resp.StatusCode, Body: string(body)}
		observability.ObserveProvider(providerName, "logs", start, err)
		return "", "", err
	}

	var stdout, stderr bytes.Buffer
	dec := json.NewDecoder(resp.Body)
	for {
		var line logLine
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			observability.ObserveProvider(providerName, "logs", start, err)
			return "", "", fmt.Errorf("decode log stream: %w", err)
		}
		switch line.Stream {
		case "stdout":
			stdout.WriteString(line.Data)
		case "stderr":
			stderr.WriteString(line.Data)
		}
	}
	observability.ObserveProvider(providerName, "logs", start, nil)
	return stdout.String(), stderr.String(), nil
}

// writeFiles uploads files as one gzip-compressed tar stream. Relative
// paths resolve against cwd inside the sandbox.
func (c *client) writeFiles(ctx context.Context, sandboxID, cwd string, files []provider.File) (err error) {
	start := time.Now()
	defer func() { observability.ObserveProvider(providerName, "write", start, err) }()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.Path,
			Mode:     0o644,
			Size:     int64(len(f.Content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar header %s: %w", f.Path, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return fmt.Errorf("tar write %s: %w", f.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	ctx, cancel := c.withDeadline(ctx, "write")
	defer cancel()
	path := "/v1/sandboxes/" + url.PathEscape(sandboxID) + "/fs/write"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path, nil), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set("x-cwd", cwd)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("write files: %w", err)
	}
	return c.parse(resp, nil)
}

func (c *client) stop(ctx context.Context, sandboxID string) error {
	return c.do(ctx, "stop", http.MethodPost, "/v1/sandboxes/"+url.PathEscape(sandboxID)+"/stop", nil, nil, nil)
}

func (c *client) snapshot(ctx context.Context, sandboxID string) (*snapshot, error) {
	var result snapshotResponse
	if err := c.do(ctx, "snapshot", http.MethodPost, "/v1/sandboxes/"+url.PathEscape(sandboxID)+"/snapshot", nil, nil, &result); err != nil {
		return nil, err
	}
	if result.Snapshot.ID == "" {
		return nil, errors.New("snapshot response carried no id")
	}
	return &result.Snapshot, nil
}
