package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrArtifactExists is returned by Persist when a report already exists
	// for the label and overwrite was not requested.
	ErrArtifactExists = errors.New("artifact already exists")
	// ErrNotFound is returned by Read when no report exists for the label.
	ErrNotFound = errors.New("artifact not found")
)

const reportSuffix = "_report.md"

// NormalizeLabel reduces a crew name to a filesystem-safe label: spaces
// become dashes and anything outside [a-zA-Z0-9._-] is dropped.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), ".-")
}

// Info describes one persisted report for listing.
type Info struct {
	Label    string    `json:"label"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Writer persists compiled research reports, one markdown file per label,
// under a single directory. Writes are atomic with respect to readers.
type Writer struct {
	dir string
}

// NewWriter ensures the reports directory exists and returns a Writer.
func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("reports directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the directory reports are written to.
func (w *Writer) Dir() string { return w.dir }

func (w *Writer) pathFor(label string) string {
	return filepath.Join(w.dir, label+reportSuffix)
}

// Persist writes content under the label's report path. Without overwrite
// an existing report is left untouched and ErrArtifactExists is returned.
// The content is written to a temp file and published atomically: rename
// when overwriting, hard link otherwise, so a concurrent reader never
// observes a partially written report and two concurrent writers for one
// label cannot both win.
func (w *Writer) Persist(label, content string, overwrite bool) (string, error) {
	label = NormalizeLabel(label)
	if label == "" {
		return "", errors.New("label is required")
	}

	tmp, err := os.CreateTemp(w.dir, "."+label+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close report: %w", err)
	}

	path := w.pathFor(label)
	if overwrite {
		if err := os.Rename(tmpName, path); err != nil {
			os.Remove(tmpName)
			return "", fmt.Errorf("rename report into place: %w", err)
		}
		return path, nil
	}

	// Link fails with ErrExist when the label is already taken, which
	// serializes concurrent writers without a stat race.
	if err := os.Link(tmpName, path); err != nil {
		os.Remove(tmpName)
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrArtifactExists, label)
		}
		return "", fmt.Errorf("publish report: %w", err)
	}
	os.Remove(tmpName)

	return path, nil
}

// Read returns the persisted report content for a label.
func (w *Writer) Read(label string) (string, error) {
	label = NormalizeLabel(label)
	data, err := os.ReadFile(w.pathFor(label))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, label)
		}
		return "", err
	}
	return string(data), nil
}

// List returns all persisted reports ordered by label.
func (w *Writer) List() ([]Info, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, reportSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Label:    strings.TrimSuffix(name, reportSuffix),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, k int) bool { return infos[i].Label < infos[k].Label })
	return infos, nil
}
