package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/debug"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
	"github.com/angelhodar/neuro-exercises/pkg/variant"
)

// DefaultTTL is how long a snapshot stays valid after creation.
const DefaultTTL = 7 * 24 * time.Hour

// PipelineConfig describes how a snapshot sandbox is built.
type PipelineConfig struct {
	// RepoURL and Branch select the git source of cold-provisioned sandboxes.
	RepoURL string
	Branch  string

	// Runtime is the provider runtime image, e.g. "node22".
	Runtime string

	// Port is the single port exposed by provisioning sandboxes.
	Port int

	// InstallCommand runs once after clone, blocking. The first element
	// is the program.
	InstallCommand []string

	// Workdir is where the repository is checked out.
	Workdir string

	// ProvisionTimeout bounds the life of a provisioning sandbox.
	ProvisionTimeout time.Duration

	// TTL is the validity of a new snapshot. Default: DefaultTTL.
	TTL time.Duration

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// NewID generates snapshot record IDs. Default: api.NewSnapshotID.
	NewID func() string
}

func (c *PipelineConfig) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = api.NewSnapshotID
	}
}

// Pipeline produces and records new snapshots.
type Pipeline struct {
	provider provider.Provider
	store    Store
	cfg      PipelineConfig
}

// NewPipeline returns a Pipeline that provisions through p and records
// snapshots in store.
func NewPipeline(p provider.Provider, store Store, cfg PipelineConfig) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{provider: p, store: store, cfg: cfg}
}

// CreateSnapshot prepares a sandbox and snapshots it. With an empty
// existingSandboxID a new sandbox is cloned from the configured repository
// and dependencies are installed. Otherwise the given sandbox is used as is
// and must be running. Variant files are substituted in both cases.
func (p *Pipeline) CreateSnapshot(ctx context.Context, existingSandboxID string) (snap *api.Snapshot, err error) {
	const op = "create snapshot"

	start := time.Now()
	observability.ProvisionsInFlight.Inc()
	defer func() {
		observability.ProvisionsInFlight.Dec()
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		observability.ProvisioningDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var sb provider.Sandbox
	fresh := existingSandboxID == ""
	if fresh {
		sb, err = p.provisionFresh(ctx)
	} else {
		sb, err = p.useExisting(ctx, existingSandboxID)
	}
	if err != nil {
		return nil, err
	}

	if err := p.substituteVariants(ctx, sb); err != nil {
		p.discard(ctx, sb, fresh, "variant substitution failed")
		return nil, api.NewProviderError(op, err)
	}

	providerSnapshotID, err := sb.Snapshot(ctx)
	if err != nil {
		p.discard(ctx, sb, fresh, "snapshot failed")
		return nil, api.NewProviderError(op, fmt.Errorf("snapshot sandbox %s: %w", sb.ID(), err))
	}

	now := p.cfg.Now()
	snap = &api.Snapshot{
		ID:          p.cfg.NewID(),
		SnapshotID:  providerSnapshotID,
		GitRevision: api.StringPtr(p.cfg.Branch),
		CreatedAt:   now,
		ExpiresAt:   now.Add(p.cfg.TTL),
	}
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("snapshot taken but not recorded, provider snapshot is orphaned",
			"provider_snapshot_id", providerSnapshotID,
			"sandbox_id", sb.ID(),
			"error", err.Error(),
		)
		return nil, api.NewPersistenceError(op, err)
	}

	slog.Info("snapshot created",
		"snapshot_id", snap.ID,
		"provider_snapshot_id", providerSnapshotID,
		"sandbox_id", sb.ID(),
		"expires_at", snap.ExpiresAt,
	)
	return snap, nil
}

func (p *Pipeline) useExisting(ctx context.Context, id string) (provider.Sandbox, error) {
	const op = "create snapshot"

	sb, err := p.provider.Get(ctx, id)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil, api.NewNotFoundError(op, fmt.Sprintf("sandbox %s not found", id))
		}
		return nil, api.NewProviderError(op, err)
	}
	if sb.Status() != provider.StatusRunning {
		return nil, api.NewInvalidStateError(op,
			fmt.Sprintf("sandbox %s is %s: stopped sandboxes cannot be restarted", id, sb.Status()))
	}
	slog.Info("refreshing snapshot from existing sandbox", "sandbox_id", id)
	return sb, nil
}

func (p *Pipeline) provisionFresh(ctx context.Context) (provider.Sandbox, error) {
	const op = "create snapshot"

	sb, err := p.provider.Create(ctx, provider.CreateOptions{
		Source:  provider.GitSource(p.cfg.RepoURL, p.cfg.Branch),
		Runtime: p.cfg.Runtime,
		Ports:   []int{p.cfg.Port},
		Timeout: p.cfg.ProvisionTimeout,
	})
	if err != nil {
		return nil, api.NewProviderError(op, fmt.Errorf("create provisioning sandbox: %w", err))
	}
	slog.Info("provisioning sandbox created", "sandbox_id", sb.ID(), "repo", p.cfg.RepoURL, "branch", p.cfg.Branch)

	if len(p.cfg.InstallCommand) == 0 {
		return sb, nil
	}

	res, err := sb.RunCommand(ctx, provider.Command{
		Name: p.cfg.InstallCommand[0],
		Args: p.cfg.InstallCommand[1:],
		Cwd:  p.cfg.Workdir,
	})
	if err != nil {
		p.discard(ctx, sb, true, "install failed")
		return nil, api.NewProviderError(op, fmt.Errorf("install dependencies in %s: %w", sb.ID(), err))
	}
	if !res.Success() {
		p.discard(ctx, sb, true, "install failed")
		return nil, api.NewProviderError(op, fmt.Errorf("install dependencies in %s: exit code %d: %s",
			sb.ID(), res.ExitCode, tail(res.Stderr, 512)))
	}
	slog.Info("dependencies installed", "sandbox_id", sb.ID())
	return sb, nil
}

// discard kills a provisioning sandbox this pipeline created. Sandboxes
// supplied by the caller are left alone.
func (p *Pipeline) discard(ctx context.Context, sb provider.Sandbox, fresh bool, reason string) {
	if fresh {
		provider.Discard(ctx, sb, reason)
	}
}

// substituteVariants lists every *.sandbox.* file once and copies each
// over its production sibling, in manifest order.
func (p *Pipeline) substituteVariants(ctx context.Context, sb provider.Sandbox) error {
	res, err := sb.RunCommand(ctx, provider.Command{
		Name: "find",
		Args: variant.FindArgs(),
		Cwd:  p.cfg.Workdir,
	})
	if err != nil {
		return fmt.Errorf("list variant files: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("list variant files: exit code %d: %s", res.ExitCode, tail(res.Stderr, 512))
	}

	copies := variant.Plan(variant.ParseFindOutput(res.Stdout))
	for _, c := range copies {
		res, err := sb.RunCommand(ctx, provider.Command{
			Name: "cp",
			Args: []string{"-f", c.Source, c.Destination},
			Cwd:  p.cfg.Workdir,
		})
		if err != nil {
			return fmt.Errorf("copy %s to %s: %w", c.Source, c.Destination, err)
		}
		if !res.Success() {
			return fmt.Errorf("copy %s to %s: exit code %d: %s", c.Source, c.Destination, res.ExitCode, tail(res.Stderr, 512))
		}
		debug.Log("snapshot", "variant substituted", "sandbox_id", sb.ID(), "source", c.Source, "destination", c.Destination)
	}
	if len(copies) > 0 {
		slog.Info("variant files substituted", "sandbox_id", sb.ID(), "count", len(copies))
	}
	return nil
}

// tail returns at most the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}
