// Package agent hands out sandboxes to agent conversations. A conversation
// that still owns a running sandbox keeps it; otherwise a new one boots from
// the current snapshot.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

const (
	// DefaultPort is the port exposed by agent sandboxes.
	DefaultPort = 3000
	// DefaultTimeout is the provider-enforced idle timeout.
	DefaultTimeout = 15 * time.Minute
)

// SnapshotSource returns the snapshot new sandboxes boot from.
// *snapshot.Cache implements it.
type SnapshotSource interface {
	GetOrRefresh(ctx context.Context) (*api.Snapshot, error)
}

// Reuse is the outcome of trying to keep a previous sandbox: either
// Reused or NeedsCreate.
type Reuse interface {
	reuse()
}

// Reused carries a previous sandbox that is still running.
type Reused struct {
	Sandbox provider.Sandbox
}

// NeedsCreate means the previous sandbox cannot be used.
type NeedsCreate struct {
	Reason string
}

func (Reused) reuse()      {}
func (NeedsCreate) reuse() {}

// Config controls agent sandbox creation.
type Config struct {
	Port    int
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Provisioner returns live sandboxes for agent conversations.
type Provisioner struct {
	provider  provider.Provider
	snapshots SnapshotSource
	cfg       Config
}

// NewProvisioner returns a Provisioner.
func NewProvisioner(p provider.Provider, snapshots SnapshotSource, cfg Config) *Provisioner {
	cfg.applyDefaults()
	return &Provisioner{provider: p, snapshots: snapshots, cfg: cfg}
}

// Port is the port agent sandboxes expose.
func (p *Provisioner) Port() int { return p.cfg.Port }

// TryReuse looks up previousID. Lookup failures are not errors: they
// select NeedsCreate.
func (p *Provisioner) TryReuse(ctx context.Context, previousID string) Reuse {
	if previousID == "" {
		return NeedsCreate{Reason: "no previous sandbox"}
	}
	sb, err := p.provider.Get(ctx, previousID)
	if err != nil {
		slog.Debug("previous agent sandbox unavailable", "sandbox_id", previousID, "error", err.Error())
		return NeedsCreate{Reason: fmt.Sprintf("lookup failed: %v", err)}
	}
	if st := sb.Status(); st != provider.StatusRunning {
		slog.Debug("previous agent sandbox not running", "sandbox_id", previousID, "status", st)
		return NeedsCreate{Reason: fmt.Sprintf("sandbox is %s", st)}
	}
	return Reused{Sandbox: sb}
}

// GetAgentSandbox returns the previous sandbox if it is still running, and
// otherwise creates one from the current snapshot. The boolean reports
// whether the sandbox was reused.
func (p *Provisioner) GetAgentSandbox(ctx context.Context, previousID string) (provider.Sandbox, bool, error) {
	const op = "get agent sandbox"

	if r, ok := p.TryReuse(ctx, previousID).(Reused); ok {
		observability.SandboxAcquisitionsTotal.WithLabelValues("agent", "reused").Inc()
		slog.Info("agent sandbox reused", "sandbox_id", r.Sandbox.ID())
		return r.Sandbox, true, nil
	}

	snap, err := p.snapshots.GetOrRefresh(ctx)
	if err != nil {
		return nil, false, err
	}

	sb, err := p.provider.Create(ctx, provider.CreateOptions{
		Source:  provider.SnapshotSource(snap.SnapshotID),
		Ports:   []int{p.cfg.Port},
		Timeout: p.cfg.Timeout,
	})
	if err != nil {
		return nil, false, api.NewProviderError(op, fmt.Errorf("create from snapshot %s: %w", snap.SnapshotID, err))
	}

	observability.SandboxAcquisitionsTotal.WithLabelValues("agent", "created").Inc()
	slog.Info("agent sandbox created", "sandbox_id", sb.ID(), "snapshot_id", snap.ID)
	return sb, false, nil
}

// Acquire is GetAgentSandbox followed by Describe.
func (p *Provisioner) Acquire(ctx context.Context, previousID string) (*api.AgentSandbox, error) {
	sb, reused, err := p.GetAgentSandbox(ctx, previousID)
	if err != nil {
		return nil, err
	}
	return p.Describe(sb, reused), nil
}

// Describe converts a sandbox into its API form, resolving the public URL
// of the agent port when the sandbox is running.
func (p *Provisioner) Describe(sb provider.Sandbox, reused bool) *api.AgentSandbox {
	out := &api.AgentSandbox{
		SandboxID: sb.ID(),
		Status:    string(sb.Status()),
		Reused:    reused,
	}
	if sb.Status() == provider.StatusRunning {
		if url, err := sb.Host(p.cfg.Port); err == nil {
			out.SandboxURL = url
		} else {
			slog.Debug("agent sandbox has no route", "sandbox_id", sb.ID(), "port", p.cfg.Port, "error", err.Error())
		}
	}
	return out
}
