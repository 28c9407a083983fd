package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists the mapping as a JSON object in a single file.
//
// Flush writes to a temporary file in the same directory, syncs it and
// renames it over the target, so a crash mid-write leaves either the old or
// the new file, never a torn one.
type FileStore struct {
	*Snapshot
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore backed by path. The file need not exist.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		Snapshot: NewSnapshot(nil),
		path:     path,
		logger:   logger,
	}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the file. A missing file is the normal first-run case; an
// unreadable or corrupt one is logged and treated as empty.
func (f *FileStore) Load(ctx context.Context) map[string]string {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Debug("state file absent, starting empty", "path", f.path)
		return f.replace(nil)
	}
	if err != nil {
		f.logger.Warn("state file unreadable, starting empty", "path", f.path, "error", err.Error())
		return f.replace(nil)
	}

	entries := make(map[string]string)
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			f.logger.Warn("state file corrupt, starting empty", "path", f.path, "error", err.Error())
			return f.replace(nil)
		}
	}
	f.logger.Debug("state loaded", "path", f.path, "creators", len(entries))
	return f.replace(entries)
}

// Flush atomically rewrites the file with the whole mapping.
func (f *FileStore) Flush(ctx context.Context) error {
	return f.flush(ctx, f.write)
}

func (f *FileStore) write(ctx context.Context, entries map[string]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %w", ErrPersist, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrPersist, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write: %w", ErrPersist, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync: %w", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrPersist, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod: %w", ErrPersist, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: rename: %w", ErrPersist, err)
	}
	committed = true

	// the rename is durable once the directory entry is; not all platforms
	// allow syncing a directory
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	f.logger.Debug("state written", "path", f.path, "creators", len(entries))
	return nil
}

// Close is a no-op; the file is not held open.
func (f *FileStore) Close() error {
	return nil
}
