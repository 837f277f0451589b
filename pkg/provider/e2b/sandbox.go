package e2b

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"

	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

// Ensure Sandbox implements provider.Sandbox.
var _ provider.Sandbox = (*Sandbox)(nil)

// Sandbox is a handle on one E2B sandbox. Metadata is only known for
// handles returned by Get and Create.
type Sandbox struct {
	p           *Provider
	id          string
	status      provider.Status
	metadata    map[string]string
	domain      string
	accessToken string
}

func (s *Sandbox) ID() string                  { return s.id }
func (s *Sandbox) Status() provider.Status     { return s.status }
func (s *Sandbox) Metadata() map[string]string { return maps.Clone(s.metadata) }

// Host returns the public https URL of port.
func (s *Sandbox) Host(port int) (string, error) {
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	return fmt.Sprintf("https://%d-%s.%s", port, s.id, s.domain), nil
}

func (s *Sandbox) RunCommand(ctx context.Context, cmd provider.Command) (*provider.CommandResult, error) {
	res, err := s.runProcess(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("run %s in %s: %w", cmd.Name, s.id, err)
	}
	return res, nil
}

func (s *Sandbox) WriteFiles(ctx context.Context, files []provider.File) error {
	if len(files) == 0 {
		return nil
	}
	if err := s.uploadFiles(ctx, files); err != nil {
		return fmt.Errorf("write files to %s: %w", s.id, err)
	}
	return nil
}

// Snapshot pauses the sandbox, persisting its filesystem and memory. The
// returned id is the sandbox id, which Connect resumes.
func (s *Sandbox) Snapshot(ctx context.Context) (string, error) {
	if err := s.p.do(ctx, "snapshot", http.MethodPost, "/sandboxes/"+url.PathEscape(s.id)+"/pause", nil, nil, nil); err != nil {
		return "", fmt.Errorf("pause %s: %w", s.id, notFound(err, s.id))
	}
	s.status = provider.StatusPaused
	return s.id, nil
}

func (s *Sandbox) Kill(ctx context.Context) error {
	if err := s.p.do(ctx, "kill", http.MethodDelete, "/sandboxes/"+url.PathEscape(s.id), nil, nil, nil); err != nil {
		return fmt.Errorf("kill %s: %w", s.id, notFound(err, s.id))
	}
	s.status = provider.StatusStopped
	return nil
}
