package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/iambrandonn/patchloop/internal/checksum"
)

// Permissions for patchloop's own bookkeeping (state, snapshots, event logs).
const (
	privateFileMode os.FileMode = 0600
	privateDirMode  os.FileMode = 0700
)

// Permissions for files the agent writes into the target project.
const (
	ProjectFileMode os.FileMode = 0644
	ProjectDirMode  os.FileMode = 0755
)

// ErrTooLarge is returned by ReadFileSafe when a file exceeds the read limit.
var ErrTooLarge = errors.New("file exceeds read limit")

// ErrNotText is returned by ReadTextFile when the content is not valid UTF-8.
var ErrNotText = errors.New("file is not valid UTF-8 text")

// AtomicWrite writes data to a file atomically using the pattern:
// 1. Write to .<basename>.tmp.<pid>.<rand>
// 2. fsync(tmp)
// 3. rename(tmp, final)
// 4. fsync(dir)
//
// Files are created with 0600 permissions (owner read/write only).
// Partial writes are never visible to readers.
func AtomicWrite(path string, data []byte) error {
	return writeAtomic(path, data, privateFileMode, privateDirMode)
}

// AtomicWriteJSON writes a JSON-serialized value to a file atomically
// The JSON is pretty-printed with indentation for readability
func AtomicWriteJSON(path string, v interface{}) error {
	if v == nil {
		return fmt.Errorf("cannot write nil value")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	data = append(data, '\n')

	return AtomicWrite(path, data)
}

func writeAtomic(path string, data []byte, fileMode, dirMode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath, err := generateTempPath(path)
	if err != nil {
		return fmt.Errorf("failed to generate temp path: %w", err)
	}

	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, fileMode)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	success := false
	defer func() {
		tmpFile.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// OpenFile honours the umask, so pin the final mode explicitly.
	if err := os.Chmod(tmpPath, fileMode); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	if err := syncDir(dir); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}

	success = true
	return nil
}

// generateTempPath creates a temporary filename in the same directory as the target
// Format: .<basename>.tmp.<pid>.<rand>
func generateTempPath(path string) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	pid := os.Getpid()

	randBytes := make([]byte, 4)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	randSuffix := hex.EncodeToString(randBytes)

	tmpName := fmt.Sprintf(".%s.tmp.%d.%s", base, pid, randSuffix)
	return filepath.Join(dir, tmpName), nil
}

// syncDir opens a directory and calls fsync on it
// This makes directory metadata (including rename operations) durable
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}

	return nil
}

// ResolveWorkspacePath validates and resolves a relative path within workspace.
// Returns the canonical absolute path, or an error if the path is absolute,
// climbs out of the workspace, or follows a symlink that leaves it.
func ResolveWorkspacePath(workspace, relative string) (string, error) {
	rootAbs, err := filepath.Abs(filepath.Clean(workspace))
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}
	rootAbs, err = filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}

	if strings.TrimSpace(relative) == "" {
		return "", fmt.Errorf("empty path")
	}

	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("absolute paths not allowed: %s", relative)
	}

	cleanPath := filepath.Clean(filepath.Join(rootAbs, relative))
	if !within(rootAbs, cleanPath) {
		return "", fmt.Errorf("path escapes workspace: %s", relative)
	}

	if _, err := os.Lstat(cleanPath); err == nil {
		resolved, err := filepath.EvalSymlinks(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}
		if !within(rootAbs, resolved) {
			return "", fmt.Errorf("symlink escapes workspace: %s", relative)
		}
		return resolved, nil
	}

	// Target does not exist yet; its nearest existing ancestor must stay inside.
	for parent := filepath.Dir(cleanPath); within(rootAbs, parent); parent = filepath.Dir(parent) {
		if _, err := os.Lstat(parent); err != nil {
			continue
		}
		resolved, err := filepath.EvalSymlinks(parent)
		if err != nil {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}
		if !within(rootAbs, resolved) {
			return "", fmt.Errorf("symlink escapes workspace: %s", relative)
		}
		break
	}

	return cleanPath, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFileSafe reads a workspace-relative file, refusing paths outside the
// workspace and files larger than maxBytes. A maxBytes of 0 disables the cap.
func ReadFileSafe(workspace, relativePath string, maxBytes int64) ([]byte, error) {
	fullPath, err := ResolveWorkspacePath(workspace, relativePath)
	if err != nil {
		return nil, fmt.Errorf("invalid file path: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if maxBytes > 0 {
		reader = io.LimitReader(file, maxBytes+1)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", relativePath, ErrTooLarge, maxBytes)
	}

	return content, nil
}

// ReadTextFile is ReadFileSafe plus a UTF-8 check.
func ReadTextFile(workspace, relativePath string, maxBytes int64) (string, error) {
	content, err := ReadFileSafe(workspace, relativePath, maxBytes)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s: %w", relativePath, ErrNotText)
	}
	return string(content), nil
}

// WriteFileAtomic replaces a workspace-relative file with content using the
// atomic write pattern, creating parent directories as needed. An existing
// file keeps its permission bits; new files get ProjectFileMode.
func WriteFileAtomic(workspace, relativePath string, content []byte) (Artifact, error) {
	fullPath, err := ResolveWorkspacePath(workspace, relativePath)
	if err != nil {
		return Artifact{}, fmt.Errorf("invalid file path: %w", err)
	}

	mode := ProjectFileMode
	if info, err := os.Stat(fullPath); err == nil {
		if info.IsDir() {
			return Artifact{}, fmt.Errorf("%s is a directory", relativePath)
		}
		mode = info.Mode().Perm()
	}

	if err := writeAtomic(fullPath, content, mode, ProjectDirMode); err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Path:   relativePath,
		SHA256: checksum.SHA256Bytes(content),
		Size:   int64(len(content)),
	}, nil
}

// Artifact describes a file written into the workspace
type Artifact struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}
