// Package organize buckets completed output directories under a
// parent directory extracted from their name, mirroring the original
// FileManager.organize_folders (file_manager.py).
package organize

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/corrinfell/mediaforge/internal/logger"
	"golang.org/x/sync/singleflight"
)

// Organizer moves top-level "<name>-<suffix>" output directories under
// a parent bucket captured from the name, refusing to clobber an
// existing destination. A singleflight group collapses concurrent
// Organize calls against the same root into one pass.
type Organizer struct {
	group singleflight.Group
}

// New returns a ready-to-use Organizer.
func New() *Organizer {
	return &Organizer{}
}

// Result reports what happened to one candidate directory.
type Result struct {
	Name   string
	Dest   string
	Moved  bool
	Reason string
}

// Organize globs top-level "*-*" directories under root, matches each
// name against pattern (one capture group naming the parent bucket),
// and moves matching directories that are not already correctly
// placed. Idempotent: a directory already under its bucket, or whose
// destination already exists, is left alone.
func (o *Organizer) Organize(root string, pattern *regexp.Regexp) ([]Result, error) {
	raw, err, _ := o.group.Do(root, func() (interface{}, error) {
		return o.organize(root, pattern)
	})
	if err != nil {
		return nil, err
	}
	return raw.([]Result), nil
}

func (o *Organizer) organize(root string, pattern *regexp.Regexp) ([]Result, error) {
	candidates, err := filepath.Glob(filepath.Join(root, "*-*"))
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || !info.IsDir() {
			continue
		}

		name := filepath.Base(candidate)
		match := pattern.FindStringSubmatch(name)
		if match == nil || len(match) < 2 {
			logger.Debug("organize: no bucket match", "name", name)
			continue
		}

		parent := filepath.Join(root, match[1])
		dest := filepath.Join(parent, name)

		// A candidate whose containing directory is already named after
		// its bucket (root is itself the bucket) is in place.
		if filepath.Base(filepath.Dir(candidate)) == match[1] {
			logger.Debug("organize: already correctly organized", "name", name)
			results = append(results, Result{Name: name, Dest: candidate, Moved: false, Reason: "already organized"})
			continue
		}

		if _, err := os.Stat(dest); err == nil {
			logger.Warn("organize: cannot move, destination exists", "name", name, "dest", dest)
			results = append(results, Result{Name: name, Reason: "destination exists"})
			continue
		}

		if err := os.MkdirAll(parent, 0o755); err != nil {
			logger.Error("organize: failed to create bucket directory", "parent", parent, "error", err)
			results = append(results, Result{Name: name, Reason: err.Error()})
			continue
		}

		if err := os.Rename(candidate, dest); err != nil {
			logger.Error("organize: failed to move directory", "name", name, "error", err)
			results = append(results, Result{Name: name, Reason: err.Error()})
			continue
		}

		logger.Info("organize: moved", "name", name, "parent", match[1])
		results = append(results, Result{Name: name, Dest: dest, Moved: true})
	}

	return results, nil
}
