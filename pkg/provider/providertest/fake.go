// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

// Fake is an in-memory provider. Sandboxes are created running and every
// call is counted so tests can assert which provider operations happened.
// The zero value is not usable; use New.
type Fake struct {
	mu        sync.Mutex
	sandboxes map[string]*FakeSandbox
	seq       int
	calls     map[string]int

	// Failure injection, keyed by operation name ("list", "get", "create",
	// "connect", "run", "write", "snapshot", "kill").
	errs map[string]error

	// CommandHandler, when set, decides the result of RunCommand.
	CommandHandler func(sb *FakeSandbox, cmd provider.Command) (*provider.CommandResult, error)

	// Now is used for StartedAt; defaults to time.Now.
	Now func() time.Time
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		sandboxes: make(map[string]*FakeSandbox),
		calls:     make(map[string]int),
		errs:      make(map[string]error),
		Now:       time.Now,
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Add registers a sandbox with the given id, status and metadata and
// returns it.
func (f *Fake) Add(id string, status provider.Status, metadata map[string]string) *FakeSandbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb := f.newSandboxLocked(id, status, metadata)
	return sb
}

// Sandbox returns the sandbox with id, or nil.
func (f *Fake) Sandbox(id string) *FakeSandbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sandboxes[id]
}

// Sandboxes returns all sandboxes sorted by id.
func (f *Fake) Sandboxes() []*FakeSandbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeSandbox, 0, len(f.sandboxes))
	for _, sb := range f.sandboxes {
		out = append(out, sb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Name implements provider.Provider.
func (f *Fake) Name() string { return "fake" }

// List implements provider.Provider.
func (f *Fake) List(_ context.Context, filter provider.ListFilter) ([]provider.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("list"); err != nil {
		return nil, err
	}

	var out []provider.Info
	for _, sb := range f.sandboxes {
		sb.mu.Lock()
		status, md, started := sb.status, maps.Clone(sb.metadata), sb.startedAt
		sb.mu.Unlock()
		if filter.State != "" && status != filter.State {
			continue
		}
		if !provider.MatchesMetadata(md, filter.Metadata) {
			continue
		}
		out = append(out, provider.Info{ID: sb.id, Status: status, Metadata: md, StartedAt: started})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements provider.Provider.
func (f *Fake) Get(_ context.Context, id string) (provider.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("get"); err != nil {
		return nil, err
	}
	sb, ok := f.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, provider.ErrNotFound)
	}
	return sb, nil
}

// Create implements provider.Provider.
func (f *Fake) Create(_ context.Context, opts provider.CreateOptions) (provider.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("create"); err != nil {
		return nil, err
	}
	if err := opts.Source.Validate(); err != nil {
		return nil, err
	}
	f.seq++
	sb := f.newSandboxLocked(fmt.Sprintf("sbx-%d", f.seq), provider.StatusRunning, opts.Metadata)
	sb.Options = opts
	return sb, nil
}

// Connect implements provider.Provider. Paused sandboxes resume; stopped
// ones cannot be connected to.
func (f *Fake) Connect(_ context.Context, id string) (provider.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("connect"); err != nil {
		return nil, err
	}
	sb, ok := f.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("connect %s: %w", id, provider.ErrNotFound)
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	switch sb.status {
	case provider.StatusPaused:
		sb.status = provider.StatusRunning
	case provider.StatusStopped, provider.StatusFailed:
		return nil, fmt.Errorf("connect %s: sandbox is %s", id, sb.status)
	}
	return sb, nil
}

func (f *Fake) enterLocked(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *Fake) errFor(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enterLocked(op)
}

func (f *Fake) newSandboxLocked(id string, status provider.Status, metadata map[string]string) *FakeSandbox {
	sb := &FakeSandbox{
		fake:      f,
		id:        id,
		status:    status,
		metadata:  maps.Clone(metadata),
		startedAt: f.Now(),
		Files:     make(map[string][]byte),
	}
	f.sandboxes[id] = sb
	return sb
}

// FakeSandbox is a sandbox held by a Fake.
type FakeSandbox struct {
	fake *Fake

	mu        sync.Mutex
	id        string
	status    provider.Status
	metadata  map[string]string
	startedAt time.Time

	// Options records what the sandbox was created with.
	Options provider.CreateOptions
	// Commands records every command run, in order.
	Commands []provider.Command
	// Files holds everything written with WriteFiles, keyed by path.
	Files map[string][]byte
	// SnapshotIDs records snapshots taken from this sandbox.
	SnapshotIDs []string
}

func (s *FakeSandbox) ID() string { return s.id }

func (s *FakeSandbox) Status() provider.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus changes the sandbox status, e.g. to simulate a timeout.
func (s *FakeSandbox) SetStatus(status provider.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *FakeSandbox) Metadata() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.metadata)
}

func (s *FakeSandbox) Host(port int) (string, error) {
	return fmt.Sprintf("https://%d-%s.sandbox.test", port, s.id), nil
}

func (s *FakeSandbox) RunCommand(_ context.Context, cmd provider.Command) (*provider.CommandResult, error) {
	if err := s.fake.errFor("run"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Commands = append(s.Commands, cmd)
	s.mu.Unlock()

	if h := s.fake.CommandHandler; h != nil {
		return h(s, cmd)
	}
	return &provider.CommandResult{}, nil
}

func (s *FakeSandbox) WriteFiles(_ context.Context, files []provider.File) error {
	if err := s.fake.errFor("write"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		s.Files[f.Path] = f.Content
	}
	return nil
}

// Snapshot stops the sandbox and returns a new snapshot id, mirroring
// providers that stop the source sandbox when snapshotting.
func (s *FakeSandbox) Snapshot(_ context.Context) (string, error) {
	if err := s.fake.errFor("snapshot"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("snap-%s-%d", s.id, len(s.SnapshotIDs)+1)
	s.SnapshotIDs = append(s.SnapshotIDs, id)
	s.status = provider.StatusStopped
	return id, nil
}

func (s *FakeSandbox) Kill(_ context.Context) error {
	if err := s.fake.errFor("kill"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = provider.StatusStopped
	return nil
}

// CommandsRun returns a copy of the commands run so far.
func (s *FakeSandbox) CommandsRun() []provider.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Command(nil), s.Commands...)
}
