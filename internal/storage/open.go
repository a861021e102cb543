package storage

import (
	"context"
	"errors"
	"strings"

	logx "doggobot/pkg/logx"
)

// Store is the sole authority for reading and replacing the punishment document.
type Store interface {
	// Load returns the current document. A missing or unparsable document
	// yields an empty one and no error.
	Load(ctx context.Context) (Document, error)
	// Save atomically replaces the whole document.
	Save(ctx context.Context, doc Document) error
	// Export returns the persisted bytes as-is and whether a document exists.
	Export(ctx context.Context) ([]byte, bool, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}

	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "bolt", "bbolt":
		return openBolt(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
