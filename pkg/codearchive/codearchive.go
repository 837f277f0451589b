// Package codearchive turns a downloaded zip payload into the list of files
// it contains. It is pure and performs no I/O beyond reading the payload.
package codearchive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// limits bound decompression. entry caps one file, total the whole archive.
type limits struct {
	entry int64
	total int64
}

var defaultLimits = limits{entry: 32 << 20, total: 256 << 20}

// Entry is one file extracted from an archive, with a slash-separated path
// relative to the archive root.
type Entry struct {
	Path    string
	Content []byte
}

// Read extracts every regular file from a zip payload, in archive order.
// Directory entries are skipped. Paths that are absolute or escape the
// archive root are rejected, as are archives that decompress past 32 MiB
// for one file or 256 MiB overall.
func Read(data []byte) ([]Entry, error) {
	return read(data, defaultLimits)
}

func read(data []byte, lim limits) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening zip archive: %w", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	remaining := lim.total
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}

		name, err := cleanPath(f.Name)
		if err != nil {
			return nil, err
		}

		content, err := readFile(f, min(lim.entry, remaining))
		if err != nil {
			if errors.Is(err, errTooLarge) && remaining < lim.entry {
				return nil, fmt.Errorf("archive exceeds %d bytes decompressed", lim.total)
			}
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		remaining -= int64(len(content))

		entries = append(entries, Entry{Path: name, Content: content})
	}

	return entries, nil
}

var errTooLarge = errors.New("entry too large")

// readFile decompresses f, failing once more than limit bytes come out.
func readFile(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errTooLarge, limit)
	}
	return content, nil
}

// cleanPath normalizes an archive member name and rejects unsafe ones.
func cleanPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("archive entry %q has an absolute path", name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("archive entry %q escapes the archive root", name)
	}
	return cleaned, nil
}
