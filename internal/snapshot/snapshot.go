package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/iambrandonn/patchloop/internal/checksum"
	"github.com/iambrandonn/patchloop/internal/fsutil"
)

// Snapshot maps every file reachable from an entry file to its content.
// Only Files is persisted; EntryFile is filled in by whoever built or loaded it.
type Snapshot struct {
	EntryFile string            `json:"-"`
	Files     map[string]string `json:"files"`
}

// New returns an empty snapshot for entryFile
func New(entryFile string) *Snapshot {
	return &Snapshot{
		EntryFile: entryFile,
		Files:     make(map[string]string),
	}
}

// Paths returns the snapshot's file paths in sorted order
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Digest hashes the snapshot content for log correlation.
// Format: "sha256:<hex>" over the canonical JSON encoding (map keys sorted).
func (s *Snapshot) Digest() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return checksum.SHA256Bytes(data)
}

// Store persists one snapshot per entry file under a fixed directory.
// The slot for an entry file is SnapshotKey(entryFile).json, so repeated runs
// against the same entry point overwrite the same file.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. The directory is created on first Save.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the storage directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the on-disk location of the snapshot for entryFile
func (s *Store) Path(entryFile string) string {
	return filepath.Join(s.dir, checksum.SnapshotKey(entryFile)+".json")
}

// Load reads the snapshot saved for entryFile.
// A missing snapshot is not an error: Load returns (nil, nil).
func (s *Store) Load(entryFile string) (*Snapshot, error) {
	path := s.Path(entryFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("no previous snapshot", "entry_file", entryFile, "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", path, err)
	}

	snap.EntryFile = entryFile
	if snap.Files == nil {
		snap.Files = make(map[string]string)
	}

	s.logger.Debug("loaded snapshot", "entry_file", entryFile, "files", len(snap.Files))
	return &snap, nil
}

// Save overwrites the snapshot slot for entryFile
func (s *Store) Save(entryFile string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}

	files := snap.Files
	if files == nil {
		files = map[string]string{}
	}

	path := s.Path(entryFile)
	if err := fsutil.AtomicWriteJSON(path, &Snapshot{Files: files}); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", entryFile, err)
	}

	s.logger.Debug("saved snapshot", "entry_file", entryFile, "path", path, "files", len(files))
	return nil
}
