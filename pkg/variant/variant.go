// Package variant plans the substitution of sandbox-only source files.
//
// A source tree may ship alternative implementations named
// "<stem>.sandbox.<ext>" (for example "app/page.sandbox.tsx"). Inside an
// ephemeral sandbox each one replaces its production sibling
// "<stem>.<ext>". The real deployment never sees the substitution.
//
// Planning is pure: callers enumerate candidate paths however they like
// (a find command in a remote sandbox, a directory walk in tests) and
// apply the resulting manifest with plain file copies.
package variant

import (
	"path"
	"sort"
	"strings"
)

// Infix marks a sandbox-only variant in a file name.
const Infix = ".sandbox."

// FindPattern is the shell glob matching variant files.
const FindPattern = "*.sandbox.*"

// ExcludedDirs are never scanned for variants.
var ExcludedDirs = []string{"node_modules", ".git", ".next"}

// Copy is one manifest step: the contents of Source overwrite Destination.
type Copy struct {
	Source      string
	Destination string
}

// Target returns the production sibling of a variant path and whether p is
// a variant at all. The last ".sandbox." infix in the base name is removed;
// both the stem before it and the extension after it must be non-empty.
func Target(p string) (string, bool) {
	dir, base := path.Split(p)
	idx := strings.LastIndex(base, Infix)
	if idx <= 0 {
		return "", false
	}
	ext := base[idx+len(Infix):]
	if ext == "" {
		return "", false
	}
	return dir + base[:idx] + "." + ext, true
}

// Plan builds a deterministic copy manifest from candidate paths. Paths are
// cleaned, non-variants and excluded directories are dropped, duplicates are
// removed, and the result is sorted by destination.
func Plan(paths []string) []Copy {
	seen := make(map[string]bool, len(paths))
	var manifest []Copy

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(path.Clean(p), "./")
		if excluded(p) {
			continue
		}
		dst, ok := Target(p)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		manifest = append(manifest, Copy{Source: p, Destination: dst})
	}

	sort.Slice(manifest, func(i, j int) bool {
		if manifest[i].Destination != manifest[j].Destination {
			return manifest[i].Destination < manifest[j].Destination
		}
		return manifest[i].Source < manifest[j].Source
	})
	return manifest
}

// ParseFindOutput splits newline-separated find output into paths.
func ParseFindOutput(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

// FindArgs returns the arguments for a find command that lists variant
// files below the current directory, pruning excluded directories.
func FindArgs() []string {
	args := []string{"."}
	for _, d := range ExcludedDirs {
		args = append(args, "-not", "-path", "*/"+d+"/*")
	}
	return append(args, "-type", "f", "-name", FindPattern)
}

func excluded(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		for _, d := range ExcludedDirs {
			if seg == d {
				return true
			}
		}
	}
	return false
}
