package intake

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write fixture file: %v", err)
	}
}

func TestEnumerateListsOnlyMatchingExtensionNonRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"))
	writeFile(t, filepath.Join(root, "b.mp4"))
	writeFile(t, filepath.Join(root, "c.txt"))
	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(sub, "d.mp4"))

	files, err := Enumerate(root, ".mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 non-recursive matches, got %v", files)
	}
}

func TestRenameStripsWhitespaceBeforeMatching(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "movie 01 .mp4")
	writeFile(t, src)

	pattern := regexp.MustCompile(`^(movie01)\.mp4$`)
	results := Rename([]string{src}, pattern, ".mp4")

	if len(results) != 1 || !results[0].Renamed {
		t.Fatalf("expected successful rename, got %+v", results)
	}
	want := filepath.Join(root, "movie01.mp4")
	if results[0].NewPath != want {
		t.Fatalf("expected new path %q, got %q", want, results[0].NewPath)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected renamed file to exist: %v", err)
	}
}

func TestRenameSkipsWhenDestinationExists(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "movie01 .mp4")
	dst := filepath.Join(root, "movie01.mp4")
	writeFile(t, src)
	writeFile(t, dst)

	pattern := regexp.MustCompile(`^(movie01)\.mp4$`)
	results := Rename([]string{src}, pattern, ".mp4")

	if len(results) != 1 || results[0].Renamed {
		t.Fatalf("expected rename to be skipped, got %+v", results)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("expected original file to still exist: %v", err)
	}
}

func TestRenameSkipsAlreadyCanonicalFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "movie01.mp4")
	writeFile(t, src)

	pattern := regexp.MustCompile(`^(movie01)\.mp4$`)
	results := Rename([]string{src}, pattern, ".mp4")

	if len(results) != 1 || !results[0].Renamed || results[0].NewPath != src {
		t.Fatalf("expected already-canonical file left in place, got %+v", results)
	}
}

func TestRenameIsIdempotentAcrossTwoRuns(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "movie 01.mp4")
	writeFile(t, src)

	pattern := regexp.MustCompile(`^(movie01)\.mp4$`)
	first := Rename([]string{src}, pattern, ".mp4")
	if len(first) != 1 || !first[0].Renamed {
		t.Fatalf("expected first rename to succeed, got %+v", first)
	}

	second := Rename([]string{first[0].NewPath}, pattern, ".mp4")
	if len(second) != 1 || !second[0].Renamed || second[0].NewPath != first[0].NewPath {
		t.Fatalf("expected second pass to be a no-op rename, got %+v", second)
	}
}

func TestRenameSkipsNonMatchingFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "not-a-match.mp4")
	writeFile(t, src)

	pattern := regexp.MustCompile(`^(movie01)\.mp4$`)
	results := Rename([]string{src}, pattern, ".mp4")

	if len(results) != 1 || results[0].Renamed {
		t.Fatalf("expected non-matching file to be skipped, got %+v", results)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("expected original file to be untouched: %v", err)
	}
}

func TestValidatePartitionsByUnstrippedName(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "movie01.mp4")
	bad := filepath.Join(root, "movie 01.mp4") // has a space, fails the strict pattern
	writeFile(t, good)
	writeFile(t, bad)

	pattern := regexp.MustCompile(`^movie\d+\.mp4$`)
	valid, invalid := Validate([]string{good, bad}, pattern)

	if len(valid) != 1 || valid[0] != good {
		t.Fatalf("expected only %q valid, got %v", good, valid)
	}
	if len(invalid) != 1 || invalid[0] != "movie 01.mp4" {
		t.Fatalf("expected %q invalid, got %v", "movie 01.mp4", invalid)
	}
}
