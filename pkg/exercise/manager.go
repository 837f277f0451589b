package exercise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/blob"
	"github.com/angelhodar/neuro-exercises/pkg/codearchive"
	"github.com/angelhodar/neuro-exercises/pkg/debug"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
	"github.com/angelhodar/neuro-exercises/pkg/storage"
)

// MetadataKey tags sandboxes with the exercise they belong to.
const MetadataKey = "exerciseId"

const (
	// DefaultTemplate is the E2B template exercise sandboxes boot from.
	DefaultTemplate = "neuro-exercises"
	// DefaultHomeDir is where archive entries are written.
	DefaultHomeDir = "/home/user"
	// DefaultPort is the port the exercise app listens on.
	DefaultPort = 3000
	// DefaultTimeout is the provider-enforced sandbox lifetime.
	DefaultTimeout = 30 * time.Minute
)

// GenerationStore reads generations and records their sandbox.
type GenerationStore interface {
	// LatestGeneration returns the newest generation of an exercise in the
	// given status, or storage.ErrNotFound.
	LatestGeneration(ctx context.Context, exerciseID int64, status api.GenerationStatus) (*api.Generation, error)

	// SetGenerationSandbox sets or clears (nil) the generation's sandbox id.
	SetGenerationSandbox(ctx context.Context, generationID int64, sandboxID *string) error
}

// Secrets are injected into every exercise sandbox as environment
// variables.
type Secrets struct {
	DatabaseURL   string
	AuthSecret    string
	AssetsBaseURL string
}

func (s Secrets) env() map[string]string {
	env := make(map[string]string, 3)
	if s.DatabaseURL != "" {
		env["DATABASE_URL"] = s.DatabaseURL
	}
	if s.AuthSecret != "" {
		env["BETTER_AUTH_SECRET"] = s.AuthSecret
	}
	if s.AssetsBaseURL != "" {
		env["NEXT_PUBLIC_BLOB_URL"] = s.AssetsBaseURL
	}
	return env
}

// Config controls exercise sandboxes.
type Config struct {
	// Template is the provider template new sandboxes start from.
	Template string
	// HomeDir is where generated files are written.
	HomeDir string
	// Port is the port whose public URL is returned.
	Port int
	// Timeout is the provider-enforced sandbox lifetime.
	Timeout time.Duration

	Secrets Secrets

	// VerifyPersistedSandbox checks the status of a sandbox id recorded on
	// a generation before connecting, and provisions a new sandbox when it
	// is gone or not running.
	VerifyPersistedSandbox bool

	// SerializePerExercise runs create and stop calls for the same
	// exercise one at a time within this process.
	SerializePerExercise bool
}

func (c *Config) applyDefaults() {
	if c.Template == "" {
		c.Template = DefaultTemplate
	}
	if c.HomeDir == "" {
		c.HomeDir = DefaultHomeDir
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Manager creates, connects to and stops exercise sandboxes.
type Manager struct {
	provider    provider.Provider
	generations GenerationStore
	blobs       blob.Fetcher
	cfg         Config
	locks       *keyedMutex
}

// NewManager returns a Manager.
func NewManager(p provider.Provider, generations GenerationStore, blobs blob.Fetcher, cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{provider: p, generations: generations, blobs: blobs, cfg: cfg}
	if cfg.SerializePerExercise {
		m.locks = newKeyedMutex()
	}
	return m
}

// CreateOrConnect returns a running sandbox for the exercise, creating one
// preloaded with the latest completed generation if needed.
func (m *Manager) CreateOrConnect(ctx context.Context, exerciseID int64) (*api.ExerciseSandbox, error) {
	const op = "create or connect sandbox"

	unlock := m.lock(exerciseID)
	defer unlock()

	running, err := m.findRunning(ctx, exerciseID)
	if err != nil {
		return nil, api.NewProviderError(op, err)
	}
	if running != "" {
		sb, err := m.connect(ctx, op, running)
		if err != nil {
			return nil, err
		}
		observability.SandboxAcquisitionsTotal.WithLabelValues("exercise", "reused").Inc()
		slog.Info("connected to running exercise sandbox", "exercise_id", exerciseID, "sandbox_id", running)
		return m.result(op, sb)
	}

	gen, err := m.generations.LatestGeneration(ctx, exerciseID, api.GenerationStatusCompleted)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, api.NewPersistenceError(op, err)
	}
	if gen == nil || !gen.HasCode() {
		return nil, api.NewNotFoundError(op, fmt.Sprintf("no completed generation for exercise %d", exerciseID))
	}

	if gen.SandboxID != nil && *gen.SandboxID != "" {
		sb, ok, err := m.persisted(ctx, op, *gen.SandboxID)
		if err != nil {
			return nil, err
		}
		if ok {
			observability.SandboxAcquisitionsTotal.WithLabelValues("exercise", "persisted").Inc()
			slog.Info("connected to persisted exercise sandbox", "exercise_id", exerciseID, "sandbox_id", sb.ID())
			return m.result(op, sb)
		}
	}

	return m.provision(ctx, exerciseID, gen)
}

// Stop kills the exercise's running sandbox, clears it from the latest
// completed generation and returns its id.
func (m *Manager) Stop(ctx context.Context, exerciseID int64) (string, error) {
	const op = "stop sandbox"

	unlock := m.lock(exerciseID)
	defer unlock()

	id, err := m.findRunning(ctx, exerciseID)
	if err != nil {
		return "", api.NewProviderError(op, err)
	}
	if id == "" {
		return "", api.NewNotFoundError(op, fmt.Sprintf("no sandbox found for exercise %d", exerciseID))
	}

	gen, err := m.generations.LatestGeneration(ctx, exerciseID, api.GenerationStatusCompleted)
	if errors.Is(err, storage.ErrNotFound) {
		return "", api.NewNotFoundError(op, fmt.Sprintf("no generation found for exercise %d", exerciseID))
	}
	if err != nil {
		return "", api.NewPersistenceError(op, err)
	}

	sb, err := m.connect(ctx, op, id)
	if err != nil {
		return "", err
	}
	if err := sb.Kill(ctx); err != nil {
		return "", api.NewProviderError(op, fmt.Errorf("kill %s: %w", id, err))
	}

	if err := m.generations.SetGenerationSandbox(ctx, gen.ID, nil); err != nil {
		return "", api.NewPersistenceError(op, err)
	}

	slog.Info("exercise sandbox stopped", "exercise_id", exerciseID, "sandbox_id", id, "generation_id", gen.ID)
	return id, nil
}

// findRunning returns the id of a running sandbox tagged with the exercise,
// or "" when there is none.
func (m *Manager) findRunning(ctx context.Context, exerciseID int64) (string, error) {
	want := map[string]string{MetadataKey: strconv.FormatInt(exerciseID, 10)}

	infos, err := m.provider.List(ctx, provider.ListFilter{State: provider.StatusRunning, Metadata: want})
	if err != nil {
		return "", fmt.Errorf("list running sandboxes: %w", err)
	}
	for _, info := range infos {
		if info.Status == provider.StatusRunning && provider.MatchesMetadata(info.Metadata, want) {
			return info.ID, nil
		}
	}
	return "", nil
}

// persisted resolves the sandbox recorded on a generation. It reports false
// when verification is enabled and the sandbox is no longer usable.
func (m *Manager) persisted(ctx context.Context, op, id string) (provider.Sandbox, bool, error) {
	if m.cfg.VerifyPersistedSandbox {
		sb, err := m.provider.Get(ctx, id)
		if err != nil && !errors.Is(err, provider.ErrNotFound) {
			return nil, false, api.NewProviderError(op, err)
		}
		if err != nil || (sb.Status() != provider.StatusRunning && sb.Status() != provider.StatusPaused) {
			slog.Info("persisted sandbox is gone, provisioning a new one", "sandbox_id", id)
			return nil, false, nil
		}
	}
	sb, err := m.connect(ctx, op, id)
	if err != nil {
		return nil, false, err
	}
	return sb, true, nil
}

func (m *Manager) provision(ctx context.Context, exerciseID int64, gen *api.Generation) (*api.ExerciseSandbox, error) {
	const op = "provision sandbox"

	data, err := m.blobs.Download(ctx, *gen.CodeBlobKey)
	if err != nil {
		return nil, api.NewProviderError(op, fmt.Errorf("download %s: %w", *gen.CodeBlobKey, err))
	}
	entries, err := codearchive.Read(data)
	if err != nil {
		return nil, api.NewProviderError(op, fmt.Errorf("read %s: %w", *gen.CodeBlobKey, err))
	}
	if len(entries) == 0 {
		return nil, api.NewProviderError(op, fmt.Errorf("archive %s contains no files", *gen.CodeBlobKey))
	}

	sb, err := m.provider.Create(ctx, provider.CreateOptions{
		Source:   provider.TemplateSource(m.cfg.Template),
		Ports:    []int{m.cfg.Port},
		Timeout:  m.cfg.Timeout,
		Env:      m.cfg.Secrets.env(),
		Metadata: map[string]string{MetadataKey: strconv.FormatInt(exerciseID, 10)},
	})
	if err != nil {
		return nil, api.NewProviderError(op, fmt.Errorf("create from template %s: %w", m.cfg.Template, err))
	}

	files := make([]provider.File, len(entries))
	for i, e := range entries {
		files[i] = provider.File{Path: path.Join(m.cfg.HomeDir, e.Path), Content: e.Content}
		debug.Log("exercise", "archive entry", "sandbox_id", sb.ID(), "path", files[i].Path, "bytes", len(e.Content))
	}
	if err := sb.WriteFiles(ctx, files); err != nil {
		// The sandbox already carries the exercise tag; left running, later
		// calls would reuse it without its code.
		provider.Discard(ctx, sb, "write files failed")
		return nil, api.NewProviderError(op, fmt.Errorf("write files to %s: %w", sb.ID(), err))
	}

	id := sb.ID()
	if err := m.generations.SetGenerationSandbox(ctx, gen.ID, &id); err != nil {
		slog.Warn("sandbox created but not recorded on generation",
			"sandbox_id", id, "generation_id", gen.ID, "error", err.Error())
		return nil, api.NewPersistenceError(op, err)
	}

	observability.SandboxAcquisitionsTotal.WithLabelValues("exercise", "created").Inc()
	slog.Info("exercise sandbox created",
		"exercise_id", exerciseID,
		"sandbox_id", id,
		"generation_id", gen.ID,
		"files", len(files),
	)
	return m.result(op, sb)
}

func (m *Manager) connect(ctx context.Context, op, id string) (provider.Sandbox, error) {
	sb, err := m.provider.Connect(ctx, id)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, api.NewNotFoundError(op, fmt.Sprintf("sandbox %s not found", id))
	}
	if err != nil {
		return nil, api.NewProviderError(op, fmt.Errorf("connect %s: %w", id, err))
	}
	return sb, nil
}

func (m *Manager) result(op string, sb provider.Sandbox) (*api.ExerciseSandbox, error) {
	url, err := sb.Host(m.cfg.Port)
	if err != nil {
		return nil, api.NewProviderError(op, fmt.Errorf("resolve host of %s: %w", sb.ID(), err))
	}
	return &api.ExerciseSandbox{SandboxID: sb.ID(), SandboxURL: url}, nil
}

func (m *Manager) lock(exerciseID int64) func() {
	if m.locks == nil {
		return func() {}
	}
	return m.locks.Lock(exerciseID)
}
