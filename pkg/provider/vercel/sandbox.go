package vercel

import (
	"context"
	"fmt"

	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

// Ensure Sandbox implements provider.Sandbox.
var _ provider.Sandbox = (*Sandbox)(nil)

// Sandbox is a handle on one Vercel sandbox. Status is the value observed
// when the handle was obtained.
type Sandbox struct {
	p      *Provider
	id     string
	status provider.Status
	routes []route
}

func (s *Sandbox) ID() string                  { return s.id }
func (s *Sandbox) Status() provider.Status     { return s.status }
func (s *Sandbox) Metadata() map[string]string { return nil }

// Host returns the public URL routed to port.
func (s *Sandbox) Host(port int) (string, error) {
	for _, r := range s.routes {
		if r.Port != port {
			continue
		}
		if r.URL != "" {
			return r.URL, nil
		}
		if r.Subdomain != "" {
			return "https://" + r.Subdomain + ".vercel.run", nil
		}
	}
	return "", fmt.Errorf("port %d is not exposed by sandbox %s", port, s.id)
}

func (s *Sandbox) RunCommand(ctx context.Context, cmd provider.Command) (*provider.CommandResult, error) {
	cwd := cmd.Cwd
	if cwd == "" {
		cwd = s.p.workdir
	}
	args := cmd.Args
	if args == nil {
		args = []string{}
	}
	res, err := s.p.api.runCommand(ctx, s.id, commandRequest{
		Command: cmd.Name,
		Args:    args,
		Cwd:     cwd,
		Env:     cmd.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s in %s: %w", cmd.Name, s.id, err)
	}
	return res, nil
}

func (s *Sandbox) WriteFiles(ctx context.Context, files []provider.File) error {
	if len(files) == 0 {
		return nil
	}
	if err := s.p.api.writeFiles(ctx, s.id, s.p.workdir, files); err != nil {
		return fmt.Errorf("write files to %s: %w", s.id, err)
	}
	return nil
}

// Snapshot snapshots the sandbox. Vercel stops the source sandbox once the
// snapshot is taken.
func (s *Sandbox) Snapshot(ctx context.Context) (string, error) {
	snap, err := s.p.api.snapshot(ctx, s.id)
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", s.id, err)
	}
	s.status = provider.StatusStopped
	return snap.ID, nil
}

func (s *Sandbox) Kill(ctx context.Context) error {
	if err := s.p.api.stop(ctx, s.id); err != nil {
		return fmt.Errorf("stop %s: %w", s.id, err)
	}
	s.status = provider.StatusStopped
	return nil
}
