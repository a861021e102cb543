package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	logx "doggobot/pkg/logx"
)

// FileStore keeps the document in one JSON file.
//
// Save writes <dir>/.tmp_* first and renames it over the target, so the
// target always holds either the previous or the new document.
type FileStore struct {
	path string
	log  logx.Logger

	mu     sync.Mutex
	closed bool

	// rename is os.Rename; tests swap it to simulate a crash before the swap.
	rename func(oldpath, newpath string) error
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	return NewFile(cfg.Path, log)
}

// NewFile returns a file-backed store at path. The parent directory is created.
func NewFile(path string, log logx.Logger) (*FileStore, error) {
	if path == "" {
		path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{path: path, log: log, rename: os.Rename}, nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("read punishments: %w", err)
	}
	doc, ok := decodeDocument(b)
	if !ok {
		s.log.Warn("punishment document unreadable; treating as empty", logx.String("path", s.path), logx.Int("bytes", len(b)))
		return Document{}, nil
	}
	return doc, nil
}

func (s *FileStore) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode punishments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeAtomic(b)
}

func (s *FileStore) writeAtomic(b []byte) (err error) {
	dir := filepath.Dir(s.path)
	f, err := os.CreateTemp(dir, ".tmp_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.log.Warn("temp file cleanup failed", logx.String("tmp", tmp), logx.Err(rmErr))
			}
		}
	}()

	if _, err = f.Write(b); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = s.rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace punishments: %w", err)
	}
	return nil
}

func (s *FileStore) Export(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
