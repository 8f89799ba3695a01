// Package badgerdb stores identities in an embedded BadgerDB.
// DATABASE_URL form: badger:///var/lib/faceid (badger:// alone runs in memory).
package badgerdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

var (
	rowPrefix   = []byte("identity/id/")
	labelPrefix = []byte("identity/label/")
	seqKey      = []byte("identity/seq")
)

const (
	seqBandwidth = 100
	maxConflicts = 3
)

func init() {
	database.RegisterBackend("badger", func(_ context.Context, dsn string, _ *config.DatabaseConfig) (database.IdentityRepository, error) {
		return Open(Options{Dir: dsn, InMemory: dsn == ""})
	})
}

// Options configures the repository.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger sets the badger logger. If nil, warnings and errors go to the
	// standard log package.
	Logger badger.Logger
}

// Repository is a BadgerDB-backed database.IdentityRepository.
type Repository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// record is the msgpack value stored under each row key.
type record struct {
	Label      string `msgpack:"label"`
	Blob       []byte `msgpack:"blob"`
	EnrolledAt int64  `msgpack:"ts"`
}

// Open opens the database described by opts.
func Open(opts Options) (*Repository, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(defaultLogger{})
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	seq, err := db.GetSequence(seqKey, seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating id sequence: %w", err)
	}
	return &Repository{db: db, seq: seq, now: time.Now}, nil
}

func rowKey(id int64) []byte {
	k := make([]byte, len(rowPrefix)+8)
	copy(k, rowPrefix)
	binary.BigEndian.PutUint64(k[len(rowPrefix):], uint64(id))
	return k
}

func labelKey(label string) []byte {
	return append(append([]byte(nil), labelPrefix...), label...)
}

// Insert stores a new identity. The label key is read and written in the
// same transaction, so concurrent inserts of one label conflict and the
// retry reports the duplicate.
func (r *Repository) Insert(_ context.Context, label string, blob []byte) (database.StoredIdentity, error) {
	n, err := r.seq.Next()
	if err != nil {
		return database.StoredIdentity{}, fmt.Errorf("next identity id: %w", err)
	}
	row := database.StoredIdentity{
		ID:         int64(n) + 1,
		Label:      label,
		Blob:       append([]byte(nil), blob...),
		EnrolledAt: r.now().UTC(),
	}

	val, err := msgpack.Marshal(record{Label: label, Blob: row.Blob, EnrolledAt: row.EnrolledAt.UnixNano()})
	if err != nil {
		return database.StoredIdentity{}, fmt.Errorf("encode identity: %w", err)
	}
	idBytes := rowKey(row.ID)[len(rowPrefix):]

	for range maxConflicts {
		err = r.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(labelKey(label))
			if err == nil {
				return database.ErrDuplicateLabel
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(labelKey(label), idBytes); err != nil {
				return err
			}
			return txn.Set(rowKey(row.ID), val)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, database.ErrDuplicateLabel) {
		return database.StoredIdentity{}, database.ErrDuplicateLabel
	}
	if err != nil {
		return database.StoredIdentity{}, fmt.Errorf("insert identity: %w", err)
	}
	return row, nil
}

// List returns all identities ordered by ID. Row keys are big-endian IDs,
// so iteration order is ID order.
func (r *Repository) List(_ context.Context) ([]database.StoredIdentity, error) {
	var out []database.StoredIdentity
	err := r.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = rowPrefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(rowPrefix); it.ValidForPrefix(rowPrefix); it.Next() {
			item := it.Item()
			id := int64(binary.BigEndian.Uint64(item.Key()[len(rowPrefix):]))

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec record
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode identity %d: %w", id, err)
			}
			out = append(out, database.StoredIdentity{
				ID:         id,
				Label:      rec.Label,
				Blob:       rec.Blob,
				EnrolledAt: time.Unix(0, rec.EnrolledAt).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

// Count returns the number of stored identities.
func (r *Repository) Count(_ context.Context) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = rowPrefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(rowPrefix); it.ValidForPrefix(rowPrefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Close releases the unused part of the id lease and closes the database.
func (r *Repository) Close() error {
	if err := r.seq.Release(); err != nil {
		r.db.Close()
		return fmt.Errorf("releasing id sequence: %w", err)
	}
	return r.db.Close()
}

// defaultLogger wraps the standard log package for badger, suppressing
// debug and info level messages.
type defaultLogger struct{}

func (defaultLogger) Errorf(f string, v ...any)   { log.Printf("[badger] ERROR: "+f, v...) }
func (defaultLogger) Warningf(f string, v ...any) { log.Printf("[badger] WARN: "+f, v...) }
func (defaultLogger) Infof(string, ...any)        {}
func (defaultLogger) Debugf(string, ...any)       {}
