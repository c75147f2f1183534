package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FilePersister rewrites a single JSON file atomically: the document goes to a
// temporary file in the same directory which then replaces the target.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}
	return data, nil
}

func (p *FilePersister) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sheet-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace %s: %w", p.path, err)
	}
	return nil
}

// MemoryPersister keeps the document in process memory.
type MemoryPersister struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
}

func NewMemoryPersister(initial []byte) *MemoryPersister {
	return &MemoryPersister{data: initial}
}

func (p *MemoryPersister) Load(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil, ErrNoState
	}
	return append([]byte(nil), p.data...), nil
}

func (p *MemoryPersister) Save(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.data = append([]byte(nil), data...)
	return nil
}

// Bytes returns the last saved document.
func (p *MemoryPersister) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data...)
}

// FailSaves makes subsequent saves fail with err; nil restores normal saves.
func (p *MemoryPersister) FailSaves(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saveErr = err
}
