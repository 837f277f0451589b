package vercel

import "github.com/angelhodar/neuro-exercises/pkg/provider"

// Wire types of the Vercel Sandbox REST API.

type sandboxStatus string

const (
	statusPending      sandboxStatus = "pending"
	statusRunning      sandboxStatus = "running"
	statusStopping     sandboxStatus = "stopping"
	statusStopped      sandboxStatus = "stopped"
	statusFailed       sandboxStatus = "failed"
	statusError        sandboxStatus = "error"
	statusSnapshotting sandboxStatus = "snapshotting"
)

func (s sandboxStatus) toProvider() provider.Status {
	switch s {
	case statusRunning:
		return provider.StatusRunning
	case statusStopping:
		return provider.StatusStopping
	case statusStopped:
		return provider.StatusStopped
	case statusSnapshotting:
		return provider.StatusSnapshotting
	case statusFailed, statusError:
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

type sandbox struct {
	ID        string        `json:"id"`
	Status    sandboxStatus `json:"status"`
	Memory    int           `json:"memory"`
	VCPUs     int           `json:"vcpus"`
	Region    string        `json:"region"`
	Runtime   string        `json:"runtime"`
	Timeout   int           `json:"timeout"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

type route struct {
	URL       string `json:"url"`
	Subdomain string `json:"subdomain"`
	Port      int    `json:"port"`
}

type sandboxResponse struct {
	Sandbox sandbox `json:"sandbox"`
	Routes  []route `json:"routes"`
}

type listResponse struct {
	Sandboxes []sandbox `json:"sandboxes"`
}

type sourceBody struct {
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Revision   string `json:"revision,omitempty"`
	SnapshotID string `json:"snapshotId,omitempty"`
}

type createRequest struct {
	ProjectID string            `json:"projectId"`
	Runtime   string            `json:"runtime,omitempty"`
	Timeout   int64             `json:"timeout,omitempty"`
	Ports     []int             `json:"ports,omitempty"`
	Source    *sourceBody       `json:"source,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

type commandRequest struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type command struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Args      []string `json:"args"`
	Cwd       string   `json:"cwd"`
	SandboxID string   `json:"sandboxId"`
	ExitCode  *int     `json:"exitCode"` // nil while running
	StartedAt int64    `json:"startedAt"`
}

type commandResponse struct {
	Command command `json:"command"`
}

// logLine is one NDJSON line of a command's log stream.
type logLine struct {
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

type snapshot struct {
	ID        string `json:"id"`
	SandboxID string `json:"sandboxId"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

type snapshotResponse struct {
	Snapshot snapshot `json:"snapshot"`
}
