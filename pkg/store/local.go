package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// LocalConfig configures the embedded store.
type LocalConfig struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in memory.
	InMemory bool
	// SyncWrites flushes every write to disk.
	SyncWrites bool
}

// Local is a key/value store of msgpack-encoded lists backed by Badger.
type Local struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenLocal opens or creates the embedded store.
func OpenLocal(cfg LocalConfig, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("store: local dir is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create local dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Local{db: db, logger: logger}, nil
}

// Close releases the database.
func (l *Local) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// List decodes the list stored at key into out, which must be a pointer to
// a slice. A missing key leaves out untouched.
func (l *Local) List(key string, out any) error {
	if l.db.IsClosed() {
		return ErrClosed
	}
	return l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, out)
		})
	})
}

// PushFront inserts item at the head of the list at key and trims the list
// to limit entries. A limit of zero or less keeps everything.
func (l *Local) PushFront(key string, item any, limit int) error {
	return l.modify(key, item, func(list []msgpack.RawMessage, enc msgpack.RawMessage) []msgpack.RawMessage {
		list = append([]msgpack.RawMessage{enc}, list...)
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		return list
	})
}

// Append adds item at the tail of the list at key and keeps only the last
// keepLast entries. A keepLast of zero or less keeps everything.
func (l *Local) Append(key string, item any, keepLast int) error {
	return l.modify(key, item, func(list []msgpack.RawMessage, enc msgpack.RawMessage) []msgpack.RawMessage {
		list = append(list, enc)
		if keepLast > 0 && len(list) > keepLast {
			list = list[len(list)-keepLast:]
		}
		return list
	})
}

func (l *Local) modify(key string, item any, fn func([]msgpack.RawMessage, msgpack.RawMessage) []msgpack.RawMessage) error {
	if l.db.IsClosed() {
		return ErrClosed
	}
	enc, err := msgpack.Marshal(item)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		var list []msgpack.RawMessage
		existing, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := existing.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &list)
			}); err != nil {
				return fmt.Errorf("store: decode %s: %w", key, err)
			}
		}

		data, err := msgpack.Marshal(fn(list, enc))
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), data)
	})
}

// Delete removes key.
func (l *Local) Delete(key string) error {
	if l.db.IsClosed() {
		return ErrClosed
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// ListOf returns the typed list stored at key.
func ListOf[T any](l *Local, key string) ([]T, error) {
	var out []T
	if err := l.List(key, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
