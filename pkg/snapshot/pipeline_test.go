package snapshot

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
	"github.com/angelhodar/neuro-exercises/pkg/provider/providertest"
	"github.com/angelhodar/neuro-exercises/pkg/storage/memory"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testPipelineConfig(now func() time.Time) PipelineConfig {
	return PipelineConfig{
		RepoURL:          "https://github.com/example/exercises.git",
		Branch:           "main",
		Runtime:          "node22",
		Port:             3000,
		InstallCommand:   []string{"pnpm", "install"},
		Workdir:          "/vercel/sandbox",
		ProvisionTimeout: 45 * time.Minute,
		Now:              now,
	}
}

// variantHandler answers find with the given output and succeeds otherwise.
func variantHandler(findOutput string) func(*providertest.FakeSandbox, provider.Command) (*provider.CommandResult, error) {
	return func(_ *providertest.FakeSandbox, cmd provider.Command) (*provider.CommandResult, error) {
		if cmd.Name == "find" {
			return &provider.CommandResult{Stdout: findOutput}, nil
		}
		return &provider.CommandResult{}, nil
	}
}

func TestCreateSnapshotFresh(t *testing.T) {
	fake := providertest.New()
	fake.CommandHandler = variantHandler("./app/page.sandbox.tsx\n./node_modules/x/a.sandbox.js\n./lib/db.sandbox.ts\n")
	store := memory.New()
	p := NewPipeline(fake, store, testPipelineConfig(fixedClock(epoch)))

	snap, err := p.CreateSnapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	if snap.SnapshotID != "snap-sbx-1-1" {
		t.Errorf("SnapshotID = %q, want snap-sbx-1-1", snap.SnapshotID)
	}
	if snap.GitRevision == nil || *snap.GitRevision != "main" {
		t.Errorf("GitRevision = %v, want main", snap.GitRevision)
	}
	if !snap.ExpiresAt.Equal(epoch.Add(7 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want now+7d", snap.ExpiresAt)
	}
	if !api.ValidateSnapshotID(snap.ID) {
		t.Errorf("record id %q: invalid snapshot id", snap.ID)
	}

	sb := fake.Sandbox("sbx-1")
	if sb.Options.Source.Kind != provider.SourceGit || sb.Options.Source.URL != "https://github.com/example/exercises.git" {
		t.Errorf("unexpected source: %+v", sb.Options.Source)
	}
	if !slices.Equal(sb.Options.Ports, []int{3000}) {
		t.Errorf("Ports = %v, want [3000]", sb.Options.Ports)
	}
	if sb.Options.Timeout != 45*time.Minute {
		t.Errorf("Timeout = %v, want 45m", sb.Options.Timeout)
	}

	cmds := sb.CommandsRun()
	var got []string
	for _, c := range cmds {
		got = append(got, c.Name)
	}
	want := []string{"pnpm", "find", "cp", "cp"}
	if !slices.Equal(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	if !slices.Equal(cmds[2].Args, []string{"-f", "app/page.sandbox.tsx", "app/page.tsx"}) {
		t.Errorf("first copy args = %v", cmds[2].Args)
	}
	if !slices.Equal(cmds[3].Args, []string{"-f", "lib/db.sandbox.ts", "lib/db.ts"}) {
		t.Errorf("second copy args = %v", cmds[3].Args)
	}

	stored, err := store.LatestSnapshot(context.Background(), epoch)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if stored.ID != snap.ID {
		t.Errorf("stored id = %q, want %q", stored.ID, snap.ID)
	}
}

func TestCreateSnapshotNoVariants(t *testing.T) {
	fake := providertest.New()
	p := NewPipeline(fake, memory.New(), testPipelineConfig(fixedClock(epoch)))

	if _, err := p.CreateSnapshot(context.Background(), ""); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	for _, c := range fake.Sandbox("sbx-1").CommandsRun() {
		if c.Name == "cp" {
			t.Errorf("unexpected copy: %v", c.Args)
		}
	}
}

func TestCreateSnapshotExistingSandbox(t *testing.T) {
	fake := providertest.New()
	fake.Add("sbx-live", provider.StatusRunning, nil)
	p := NewPipeline(fake, memory.New(), testPipelineConfig(fixedClock(epoch)))

	snap, err := p.CreateSnapshot(context.Background(), "sbx-live")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if snap.SnapshotID != "snap-sbx-live-1" {
		t.Errorf("SnapshotID = %q", snap.SnapshotID)
	}
	if n := fake.Calls("create"); n != 0 {
		t.Errorf("create calls = %d, want 0", n)
	}
	for _, c := range fake.Sandbox("sbx-live").CommandsRun() {
		if c.Name == "pnpm" {
			t.Error("install must not run on an existing sandbox")
		}
	}
}

func TestCreateSnapshotExistingSandboxStopped(t *testing.T) {
	fake := providertest.New()
	fake.Add("sbx-old", provider.StatusStopped, nil)
	store := memory.New()
	p := NewPipeline(fake, store, testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "sbx-old")
	if !api.IsType(err, api.ErrorTypeInvalidState) {
		t.Fatalf("expected invalid_state error, got %v", err)
	}
	if fake.Calls("create") != 0 || fake.Calls("snapshot") != 0 {
		t.Error("no sandbox should be created or snapshotted")
	}
	if _, err := store.LatestSnapshot(context.Background(), epoch); err == nil {
		t.Error("nothing should have been recorded")
	}
}

func TestCreateSnapshotExistingSandboxMissing(t *testing.T) {
	p := NewPipeline(providertest.New(), memory.New(), testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "sbx-nope")
	if !api.IsType(err, api.ErrorTypeNotFound) {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestCreateSnapshotInstallFails(t *testing.T) {
	fake := providertest.New()
	fake.CommandHandler = func(_ *providertest.FakeSandbox, cmd provider.Command) (*provider.CommandResult, error) {
		if cmd.Name == "pnpm" {
			return &provider.CommandResult{ExitCode: 1, Stderr: "ERR_PNPM_FETCH_404"}, nil
		}
		return &provider.CommandResult{}, nil
	}
	store := memory.New()
	p := NewPipeline(fake, store, testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "")
	if !api.IsType(err, api.ErrorTypeProviderFailure) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if fake.Calls("snapshot") != 0 {
		t.Error("snapshot must not be taken after a failed install")
	}
	if got := fake.Sandbox("sbx-1").Status(); got != provider.StatusStopped {
		t.Errorf("provisioning sandbox status = %s, want stopped", got)
	}
	if _, err := store.LatestSnapshot(context.Background(), epoch); err == nil {
		t.Error("nothing should have been recorded")
	}
}

func TestCreateSnapshotCopyFails(t *testing.T) {
	fake := providertest.New()
	fake.CommandHandler = func(_ *providertest.FakeSandbox, cmd provider.Command) (*provider.CommandResult, error) {
		switch cmd.Name {
		case "find":
			return &provider.CommandResult{Stdout: "./app/page.sandbox.tsx\n"}, nil
		case "cp":
			return &provider.CommandResult{ExitCode: 1, Stderr: "permission denied"}, nil
		}
		return &provider.CommandResult{}, nil
	}
	p := NewPipeline(fake, memory.New(), testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "")
	if !api.IsType(err, api.ErrorTypeProviderFailure) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if fake.Calls("snapshot") != 0 {
		t.Error("snapshot must not be taken after a failed substitution")
	}
	if got := fake.Sandbox("sbx-1").Status(); got != provider.StatusStopped {
		t.Errorf("provisioning sandbox status = %s, want stopped", got)
	}
}

func TestCreateSnapshotCopyFailsKeepsExistingSandbox(t *testing.T) {
	fake := providertest.New()
	fake.Add("sbx-live", provider.StatusRunning, nil)
	fake.CommandHandler = func(_ *providertest.FakeSandbox, cmd provider.Command) (*provider.CommandResult, error) {
		if cmd.Name == "find" {
			return nil, errors.New("exec failed")
		}
		return &provider.CommandResult{}, nil
	}
	p := NewPipeline(fake, memory.New(), testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "sbx-live")
	if !api.IsType(err, api.ErrorTypeProviderFailure) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if fake.Calls("kill") != 0 {
		t.Error("a caller-supplied sandbox must not be killed")
	}
	if got := fake.Sandbox("sbx-live").Status(); got != provider.StatusRunning {
		t.Errorf("status = %s, want running", got)
	}
}

func TestCreateSnapshotProviderSnapshotFails(t *testing.T) {
	fake := providertest.New()
	fake.FailOn("snapshot", errors.New("image store unavailable"))
	p := NewPipeline(fake, memory.New(), testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "")
	if !api.IsType(err, api.ErrorTypeProviderFailure) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if fake.Calls("kill") != 1 {
		t.Errorf("kill calls = %d, want 1", fake.Calls("kill"))
	}
	if got := fake.Sandbox("sbx-1").Status(); got != provider.StatusStopped {
		t.Errorf("provisioning sandbox status = %s, want stopped", got)
	}
}

func TestCreateSnapshotProviderCreateFails(t *testing.T) {
	fake := providertest.New()
	fake.FailOn("create", errors.New("quota exceeded"))
	p := NewPipeline(fake, memory.New(), testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "")
	if !api.IsType(err, api.ErrorTypeProviderFailure) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

type failingStore struct {
	*memory.Store
	err error
}

func (s failingStore) SaveSnapshot(context.Context, *api.Snapshot) error { return s.err }

func TestCreateSnapshotPersistenceFails(t *testing.T) {
	fake := providertest.New()
	p := NewPipeline(fake, failingStore{Store: memory.New(), err: errors.New("disk full")}, testPipelineConfig(fixedClock(epoch)))

	_, err := p.CreateSnapshot(context.Background(), "")
	if !api.IsType(err, api.ErrorTypePersistenceFailure) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if fake.Calls("snapshot") != 1 {
		t.Error("the provider snapshot is taken before recording")
	}
}
