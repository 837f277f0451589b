package codearchive

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

type member struct {
	name    string
	content string
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatalf("create %s: %v", m.name, err)
		}
		if m.content != "" {
			if _, err := w.Write([]byte(m.content)); err != nil {
				t.Fatalf("write %s: %v", m.name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestRead(t *testing.T) {
	data := buildZip(t,
		member{"app/", ""},
		member{"app/page.tsx", "export default function Page() {}"},
		member{"components/exercise.tsx", "export const Exercise = () => null"},
		member{"./package.json", `{"name":"exercise"}`},
	)

	entries, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []struct {
		path    string
		content string
	}{
		{"app/page.tsx", "export default function Page() {}"},
		{"components/exercise.tsx", "export const Exercise = () => null"},
		{"package.json", `{"name":"exercise"}`},
	}

	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Path != w.path {
			t.Errorf("entries[%d].Path = %q, want %q", i, entries[i].Path, w.path)
		}
		if string(entries[i].Content) != w.content {
			t.Errorf("entries[%d].Content = %q, want %q", i, entries[i].Content, w.content)
		}
	}
}

func TestReadEmptyArchive(t *testing.T) {
	entries, err := Read(buildZip(t))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestReadRejectsUnsafePaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../etc/passwd"},
		{"nested traversal", "app/../../secrets"},
		{"absolute", "/etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(buildZip(t, member{tt.path, "x"}))
			if err == nil {
				t.Errorf("Read(%q) = nil error, want rejection", tt.path)
			}
		})
	}
}

func TestReadInvalidPayload(t *testing.T) {
	if _, err := Read([]byte("not a zip")); err == nil {
		t.Error("expected error for non-zip payload")
	}
}

func TestReadSizeLimits(t *testing.T) {
	lim := limits{entry: 10, total: 25}
	tests := []struct {
		name    string
		members []member
		wantErr string
	}{
		{
			name:    "within limits",
			members: []member{{"a.ts", "0123456789"}, {"b.ts", "0123456789"}, {"c.ts", "01234"}},
		},
		{
			name:    "entry too large",
			members: []member{{"big.ts", "0123456789x"}},
			wantErr: "big.ts",
		},
		{
			name:    "total too large",
			members: []member{{"a.ts", "0123456789"}, {"b.ts", "0123456789"}, {"c.ts", "012345"}},
			wantErr: "archive exceeds 25 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := read(buildZip(t, tt.members...), lim)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
