package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, rel := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", full, err)
		}
	}
}

func TestListFilesDeterministicOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "main.py", "app/util.py", "README.md", "app/models/user.py")

	got, err := ListFiles(DefaultConfig(root))
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	want := []string{
		filepath.Join(root, "README.md"),
		filepath.Join(root, "main.py"),
		filepath.Join(root, "app", "util.py"),
		filepath.Join(root, "app", "models", "user.py"),
	}
	if !slices.Equal(got, want) {
		t.Fatalf("ListFiles() = %v, want %v", got, want)
	}
}

func TestListFilesNodeModulesRecordedOnce(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "index.js", "node_modules/left-pad/index.js", "node_modules/react/index.js")

	got, err := ListFiles(DefaultConfig(root))
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	want := []string{filepath.Join(root, "index.js"), filepath.Join(root, "node_modules")}
	if !slices.Equal(got, want) {
		t.Fatalf("ListFiles() = %v, want %v", got, want)
	}
}

func TestListFilesSkipsVCSAndCrowdedDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "main.go", ".git/HEAD", ".git/objects/ab/cdef")

	var crowded []string
	for i := 0; i <= DefaultMaxFilesPerDir; i++ {
		crowded = append(crowded, fmt.Sprintf("generated/file%02d.txt", i))
	}
	crowded = append(crowded, "generated/nested/deep.txt")
	writeTree(t, root, crowded...)

	got, err := ListFiles(DefaultConfig(root))
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	want := []string{filepath.Join(root, "main.go")}
	if !slices.Equal(got, want) {
		t.Fatalf("ListFiles() = %v, want %v", got, want)
	}
}

func TestListFilesAtThreshold(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var files []string
	for i := 0; i < 3; i++ {
		files = append(files, fmt.Sprintf("f%d.txt", i))
	}
	writeTree(t, root, files...)

	cfg := DefaultConfig(root)
	cfg.MaxFilesPerDir = 3
	got, err := ListFiles(cfg)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 files at threshold, got %d", len(got))
	}

	cfg.MaxFilesPerDir = 2
	got, err = ListFiles(cfg)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected crowded root to be skipped, got %v", got)
	}
}

func TestListFilesRequiresDirectory(t *testing.T) {
	t.Parallel()

	if _, err := ListFiles(Config{}); err == nil {
		t.Fatal("expected error for empty root")
	}

	root := t.TempDir()
	writeTree(t, root, "file.txt")
	if _, err := ListFiles(DefaultConfig(filepath.Join(root, "file.txt"))); err == nil {
		t.Fatal("expected error for file root")
	}
	if _, err := ListFiles(DefaultConfig(filepath.Join(root, "missing"))); err == nil {
		t.Fatal("expected error for missing root")
	}
}
