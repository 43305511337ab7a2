package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/gatecheck/internal/driver"
	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a scenario name into a file name stem.
func Slug(name string) string {
	s := strings.Trim(slugSanitizer.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "scenario"
	}
	return s
}

// DirSink stores failure artifacts under Root/<run id>/.
type DirSink struct {
	Root string
}

var _ scenario.ArtifactSink = (*DirSink)(nil)

type artifactMeta struct {
	Scenario string `json:"scenario"`
	RunID    string `json:"run_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// Save writes the page HTML, the screenshot when present and a metadata file.
func (s *DirSink) Save(ctx context.Context, runID, name string, a *driver.Artifacts) ([]string, error) {
	if a == nil {
		return nil, nil
	}
	root, err := homedir.Expand(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifacts dir %s: %w", s.Root, err)
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	stem := filepath.Join(dir, Slug(name))
	meta, err := json.MarshalIndent(artifactMeta{Scenario: name, RunID: runID, URL: a.URL, Title: a.Title}, "", "  ")
	if err != nil {
		return nil, err
	}
	files := []struct {
		path string
		data []byte
	}{
		{stem + ".json", meta},
		{stem + ".html", []byte(a.HTML)},
	}
	if len(a.Screenshot) > 0 {
		files = append(files, struct {
			path string
			data []byte
		}{stem + ".png", a.Screenshot})
	}

	var written []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write artifact %s: %w", f.path, err)
		}
		written = append(written, f.path)
	}
	return written, nil
}
