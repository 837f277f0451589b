package provider

import "testing"

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr bool
	}{
		{"git", GitSource("https://github.com/acme/app.git", "main"), false},
		{"git without url", Source{Kind: SourceGit}, true},
		{"snapshot", SnapshotSource("snap_123"), false},
		{"snapshot without id", Source{Kind: SourceSnapshot}, true},
		{"template", TemplateSource("exercise-runner"), false},
		{"template without id", Source{Kind: SourceTemplate}, true},
		{"unknown kind", Source{Kind: "docker"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatchesMetadata(t *testing.T) {
	md := map[string]string{"exerciseId": "5", "kind": "exercise"}

	if !MatchesMetadata(md, map[string]string{"exerciseId": "5"}) {
		t.Error("expected match on subset")
	}
	if MatchesMetadata(md, map[string]string{"exerciseId": "6"}) {
		t.Error("expected mismatch on different value")
	}
	if MatchesMetadata(nil, map[string]string{"exerciseId": "5"}) {
		t.Error("expected mismatch on nil metadata")
	}
	if !MatchesMetadata(md, nil) {
		t.Error("empty filter should match everything")
	}
}

func TestCommandResultSuccess(t *testing.T) {
	if !(&CommandResult{ExitCode: 0}).Success() {
		t.Error("exit 0 should be success")
	}
	if (&CommandResult{ExitCode: 1}).Success() {
		t.Error("exit 1 should not be success")
	}
}
