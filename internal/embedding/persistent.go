package embedding

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// PersistentCache stores embeddings on disk in a badger database so a rebuild over
// unchanged text does not call the provider again.
type PersistentCache struct {
	db     *badger.DB
	logger *zap.Logger
}

// badgerLogger adapts zap to badger.Logger. Badger's info chatter goes to debug.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.logger.Errorf(msg, args...) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.logger.Warnf(msg, args...) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.logger.Debugf(msg, args...) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.logger.Debugf(msg, args...) }

// OpenPersistentCache opens (creating if needed) the cache directory at dir.
// An empty dir opens an in-memory cache.
func OpenPersistentCache(dir string, logger *zap.Logger) (*PersistentCache, error) {
	logger = utils.OrNop(logger)
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create embedding cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &PersistentCache{db: db, logger: logger}, nil
}

// Get returns the stored vector for key.
func (c *PersistentCache) Get(key string) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec = utils.BytesToFloat32s(val)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return vec, true
}

// SetMany stores vectors under their keys in one transaction batch.
func (c *PersistentCache) SetMany(keys []string, vecs [][]float32) error {
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for i, key := range keys {
		if err := wb.Set([]byte(key), utils.Float32sToBytes(vecs[i])); err != nil {
			return fmt.Errorf("embedding cache write: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("embedding cache flush: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *PersistentCache) Close() error {
	return c.db.Close()
}
