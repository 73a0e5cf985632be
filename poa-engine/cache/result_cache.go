package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

const keyPrefix = "poa/v1/"

// Config holds configuration for a ResultCache.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// TTL is how long an entry lives. Zero means no expiry.
	TTL time.Duration

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true, TTL: time.Hour}
}

// entry is the stored form of a consensus result.
type entry struct {
	Consensus   []byte `json:"consensus"`
	Truncated   bool   `json:"truncated,omitempty"`
	ReportedLen int    `json:"reported_len"`
}

// ResultCache stores consensus results keyed by their exact inputs.
// Consensus is a pure function of its inputs, so a hit is always valid.
type ResultCache struct {
	db  *badger.DB
	ttl time.Duration
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the cache described by cfg.
func Open(cfg Config) (*ResultCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &ResultCache{db: db, ttl: cfg.TTL}, nil
}

// Get returns the cached result for key.
func (c *ResultCache) Get(key []byte) (binding.Result, bool, error) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return binding.Result{}, false, nil
	}
	if err != nil {
		return binding.Result{}, false, fmt.Errorf("cache get: %w", err)
	}
	return binding.Result{Consensus: string(e.Consensus), Truncated: e.Truncated, ReportedLen: e.ReportedLen}, true, nil
}

// Put stores res under key.
func (c *ResultCache) Put(key []byte, res binding.Result) error {
	val, err := json.Marshal(entry{Consensus: []byte(res.Consensus), Truncated: res.Truncated, ReportedLen: res.ReportedLen})
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, val)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close flushes and closes the underlying database.
func (c *ResultCache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for one consensus request. Records are hashed
// length-prefixed so that different splits of the same bytes never collide.
func Key(cfg binding.AlignmentConfig, strategy binding.ResultStrategy, seqs []binding.Sequence, quals []binding.Quality) []byte {
	h := sha256.New()

	second := cfg.SecondTier()
	writeInts(h, int64(cfg.Mode), int64(cfg.Match), int64(cfg.Mismatch),
		int64(cfg.Gap.Open), int64(cfg.Gap.Extend), int64(second.Open), int64(second.Extend))

	switch s := strategy.(type) {
	case binding.BoundedResult:
		writeInts(h, 1, int64(s.Capacity))
	default:
		writeInts(h, 0, 0)
	}

	writeInts(h, int64(len(seqs)))
	for _, s := range seqs {
		writeRecord(h, s)
	}
	if quals == nil {
		writeInts(h, -1)
	} else {
		writeInts(h, int64(len(quals)))
		for _, q := range quals {
			writeRecord(h, q)
		}
	}

	return append([]byte(keyPrefix), h.Sum(nil)...)
}

func writeInts(h hash.Hash, vals ...int64) {
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
}

func writeRecord(h hash.Hash, b []byte) {
	writeInts(h, int64(len(b)))
	h.Write(b)
}
