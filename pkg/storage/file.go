package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/esplus/pkg/types"
	"gopkg.in/yaml.v3"
)

// FileProvider implements Store with a YAML file holding a list of entries.
// Entries are kept in memory and the file is rewritten on every change.
type FileProvider struct {
	path string

	mu      sync.Mutex
	entries map[string]types.ConfigEntry
}

var _ Store = (*FileProvider)(nil)

func configuredFile() *FileProvider {
	path := lflag.String("config-file", "esplus.yaml", "Path of the YAML file holding config entries")

	f := &FileProvider{}

	lflag.Do(func() {
		f.path = *path
	})

	return f
}

// NewFileProvider returns a FileProvider for path. Init must be called
// before use.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Validate checks if the provider is properly configured.
func (f *FileProvider) Validate() error {
	if f.path == "" {
		return errors.New("config-file is required")
	}
	return nil
}

// Init loads the file. A missing file is treated as empty.
func (f *FileProvider) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = make(map[string]types.ConfigEntry)
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var entries []types.ConfigEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%s: entry %d has no id", f.path, i)
		}
		if _, ok := f.entries[e.ID]; ok {
			return fmt.Errorf("%s: duplicate entry id %s", f.path, e.ID)
		}
		f.entries[e.ID] = e
	}
	return nil
}

// Close is a no-op.
func (f *FileProvider) Close() error {
	return nil
}

func (f *FileProvider) sortedLocked() []types.ConfigEntry {
	out := make([]types.ConfigEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *FileProvider) writeLocked() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f.sortedLocked()); err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}

// ListEntries returns every entry ordered by id.
func (f *FileProvider) ListEntries(ctx context.Context) ([]types.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedLocked(), nil
}

// GetEntry returns the entry with the given id.
func (f *FileProvider) GetEntry(ctx context.Context, id string) (types.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return types.ConfigEntry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e, nil
}

// PutEntry creates or replaces an entry and rewrites the file.
func (f *FileProvider) PutEntry(ctx context.Context, entry types.ConfigEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, existed := f.entries[entry.ID]
	f.entries[entry.ID] = entry
	if err := f.writeLocked(); err != nil {
		if existed {
			f.entries[entry.ID] = prev
		} else {
			delete(f.entries, entry.ID)
		}
		return err
	}
	return nil
}

// DeleteEntry removes an entry and rewrites the file. Deleting a missing
// entry is not an error.
func (f *FileProvider) DeleteEntry(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.entries[id]
	if !ok {
		return nil
	}
	delete(f.entries, id)
	if err := f.writeLocked(); err != nil {
		f.entries[id] = prev
		return err
	}
	return nil
}
