package provider

import "fmt"

// Status is the provider-reported state of a sandbox.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusSnapshotting Status = "snapshotting"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// SourceKind selects what a new sandbox's filesystem is built from.
type SourceKind string

const (
	SourceGit      SourceKind = "git"
	SourceSnapshot SourceKind = "snapshot"
	SourceTemplate SourceKind = "template"
)

// Source is the filesystem origin of a new sandbox. Exactly the fields for
// its Kind are used.
type Source struct {
	Kind       SourceKind
	URL        string // git
	Revision   string // git
	SnapshotID string // snapshot
	TemplateID string // template
}

// GitSource returns a source that clones url at revision.
func GitSource(url, revision string) Source {
	return Source{Kind: SourceGit, URL: url, Revision: revision}
}

// SnapshotSource returns a source that boots from a snapshot image.
func SnapshotSource(snapshotID string) Source {
	return Source{Kind: SourceSnapshot, SnapshotID: snapshotID}
}

// TemplateSource returns a source that boots from a prebuilt template.
func TemplateSource(templateID string) Source {
	return Source{Kind: SourceTemplate, TemplateID: templateID}
}

// Validate checks that the fields required by Kind are set.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceGit:
		if s.URL == "" {
			return fmt.Errorf("git source requires a URL")
		}
	case SourceSnapshot:
		if s.SnapshotID == "" {
			return fmt.Errorf("snapshot source requires a snapshot id")
		}
	case SourceTemplate:
		if s.TemplateID == "" {
			return fmt.Errorf("template source requires a template id")
		}
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
	return nil
}

// MatchesMetadata reports whether md contains every key/value in want.
func MatchesMetadata(md, want map[string]string) bool {
	for k, v := range want {
		if md[k] != v {
			return false
		}
	}
	return true
}
