// Package intake lists, renames, and validates source files before
// they are scheduled for transcoding. Grounded in the original
// FileManager's rename_files/validate_files (file_manager.py), with
// the same deliberate asymmetry: renaming strips whitespace before
// matching, validation does not.
package intake

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/corrinfell/mediaforge/internal/logger"
)

// Enumerate lists files directly under root (non-recursive) whose name
// ends in ext, sorted the way filepath.Glob returns them (lexical).
func Enumerate(root, ext string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*"+ext))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// RenameResult reports the outcome of one file's rename attempt.
type RenameResult struct {
	OldPath string
	NewPath string
	Renamed bool
	Reason  string
}

// Rename matches each path's whitespace-stripped base name against
// pattern (which must have at least one capture group; the first one
// names the file) and renames it to capture+ext. Files already canonical, non-matching files, and
// files whose destination already exists are skipped rather than
// failing the batch — one bad file never aborts intake.
func Rename(paths []string, pattern *regexp.Regexp, ext string) []RenameResult {
	results := make([]RenameResult, 0, len(paths))

	for _, path := range paths {
		dir := filepath.Dir(path)
		name := filepath.Base(path)
		stripped := strings.ReplaceAll(name, " ", "")

		match := pattern.FindStringSubmatch(stripped)
		if match == nil || len(match) < 2 {
			logger.Warn("intake: skipping non-matching file", "path", path)
			results = append(results, RenameResult{OldPath: path, Reason: "no pattern match"})
			continue
		}

		newName := match[1] + ext
		if newName == name {
			logger.Debug("intake: already canonical", "path", path)
			results = append(results, RenameResult{OldPath: path, NewPath: path, Renamed: true, Reason: "already canonical"})
			continue
		}

		newPath := filepath.Join(dir, newName)
		if _, err := os.Stat(newPath); err == nil {
			logger.Warn("intake: cannot rename, destination exists", "path", path, "dest", newPath)
			results = append(results, RenameResult{OldPath: path, Reason: "destination exists"})
			continue
		}

		if err := renameAcrossFilesystems(path, newPath); err != nil {
			logger.Error("intake: rename failed", "path", path, "error", err)
			results = append(results, RenameResult{OldPath: path, Reason: err.Error()})
			continue
		}

		logger.Info("intake: renamed", "from", name, "to", newName)
		results = append(results, RenameResult{OldPath: path, NewPath: newPath, Renamed: true})
	}

	return results
}

// renameAcrossFilesystems prefers an atomic os.Rename, falling back to
// copy-then-remove only when the rename fails because src and dst
// cross a filesystem boundary (EXDEV) — the same fallback used for
// the temp-to-final move in FinalizeTranscode, generalized here to
// the intake rename path.
func renameAcrossFilesystems(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if copyErr := copyFile(src, dst); copyErr != nil {
		return copyErr
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}
	return dstFile.Close()
}

// Validate partitions paths by whether their un-stripped base name
// matches pattern: valid holds the matching paths, invalid the base
// names of the others. Unlike Rename, this never touches whitespace first —
// the original validate_files matches file.name directly.
func Validate(paths []string, pattern *regexp.Regexp) (valid, invalid []string) {
	for _, path := range paths {
		name := filepath.Base(path)
		if pattern.MatchString(name) {
			valid = append(valid, path)
		} else {
			invalid = append(invalid, name)
		}
	}
	return valid, invalid
}
