// Package storage reads and rewrites JSON documents under an OS advisory file lock.
//
// Every read takes a shared lock and every write happens inside an exclusive
// transaction that spans read, mutate, serialize and rewrite. The lock is
// advisory: only processes that go through this package (or honor the same
// flock/LockFileEx discipline) are excluded. The rewrite truncates the file in
// place, so a crash between truncate and write can leave a document empty or
// partial.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrCorruptDocument = errors.New("corrupt document")
	ErrStorage         = errors.New("storage failure")
	ErrLock            = errors.New("lock failure")
	ErrMissing         = errors.New("document does not exist")

	// ErrSkipWrite may be returned by a mutator to end a transaction
	// without rewriting the document. Transact then returns nil.
	ErrSkipWrite = errors.New("skip write")
)

// slowLock is the wait after which lock acquisition is logged.
const slowLock = 250 * time.Millisecond

type lockMode int

const (
	shared lockMode = iota
	exclusive
)

func (m lockMode) String() string {
	if m == exclusive {
		return "exclusive"
	}
	return "shared"
}

// Store performs locked document access. It holds no per-file state, so one
// Store may be shared by every repository in the process.
type Store struct {
	log zerolog.Logger
}

// New creates a Store that logs through log.
func New(log zerolog.Logger) *Store {
	return &Store{log: log.With().Str("component", "storage").Logger()}
}

// Read decodes the document at path under a shared lock. A missing or empty
// file yields the zero value of T.
func Read[T any](s *Store, path string) (T, error) {
	doc, err := ReadExisting[T](s, path)
	if errors.Is(err, ErrMissing) {
		var zero T
		return zero, nil
	}
	return doc, err
}

// ReadExisting is like Read but returns ErrMissing when the file is absent.
func ReadExisting[T any](s *Store, path string) (T, error) {
	var doc T
	err := s.withFile(path, shared, false, func(f *os.File) error {
		return decode(f, path, &doc)
	})
	return doc, err
}

// Transact runs fn against the current content of path while holding an
// exclusive lock, then rewrites the file with the mutated value. The file is
// created when missing. If fn returns an error the file is left untouched.
func Transact[T any](s *Store, path string, fn func(doc *T) error) error {
	return transact(s, path, true, fn)
}

// TransactExisting is like Transact but returns ErrMissing instead of
// creating the file, including when the file was unlinked while waiting for
// the lock.
func TransactExisting[T any](s *Store, path string, fn func(doc *T) error) error {
	return transact(s, path, false, fn)
}

// Overwrite replaces the content of path with value inside an exclusive
// transaction.
func Overwrite[T any](s *Store, path string, value T) error {
	return Transact(s, path, func(doc *T) error {
		*doc = value
		return nil
	})
}

func transact[T any](s *Store, path string, create bool, fn func(doc *T) error) error {
	return s.withFile(path, exclusive, create, func(f *os.File) error {
		var doc T
		if err := decode(f, path, &doc); err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return nil
			}
			return err
		}
		return encode(f, path, doc)
	})
}

// Remove unlinks path under an exclusive lock so that no transaction is
// mid-write when the document disappears. It reports whether a file was
// removed.
func (s *Store) Remove(path string) (bool, error) {
	err := s.withFile(path, exclusive, false, func(*os.File) error {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrMissing, path)
			}
			return fmt.Errorf("%w: remove %s: %w", ErrStorage, path, err)
		}
		return nil
	})
	if errors.Is(err, ErrMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// withFile opens path, locks it in mode and runs fn. The lock is released and
// the file closed on every exit path.
func (s *Store) withFile(path string, mode lockMode, create bool, fn func(*os.File) error) error {
	for {
		retry, err := s.attempt(path, mode, create, fn)
		if !retry {
			return err
		}
		s.log.Debug().Str("path", path).Msg("document replaced while waiting for lock, retrying")
	}
}

func (s *Store) attempt(path string, mode lockMode, create bool, fn func(*os.File) error) (bool, error) {
	f, err := openFile(path, mode, create)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return false, fmt.Errorf("%w: open %s: %w", ErrStorage, path, err)
	}
	defer f.Close()

	start := time.Now()
	if err := lockFile(f, mode); err != nil {
		return false, fmt.Errorf("%w: %s lock %s: %w", ErrLock, mode, path, err)
	}
	defer func() {
		if err := unlockFile(f); err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("failed to release lock")
		}
	}()
	if waited := time.Since(start); waited > slowLock {
		s.log.Debug().Str("path", path).Str("mode", mode.String()).Dur("waited", waited).Msg("slow lock acquisition")
	}

	current, err := isCurrent(f, path)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrStorage, path, err)
	}
	if !current {
		if create {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s", ErrMissing, path)
	}

	return false, fn(f)
}

func openFile(path string, mode lockMode, create bool) (*os.File, error) {
	if mode == shared {
		return os.Open(path)
	}
	flag := os.O_RDWR
	if create {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		flag |= os.O_CREATE
	}
	return os.OpenFile(path, flag, 0o644)
}

// isCurrent reports whether f is still the file named by path. A document
// removed or replaced while we waited for the lock is not current.
func isCurrent(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, err
	}
	named, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(held, named), nil
}

func decode(f *os.File, path string, v any) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek %s: %w", ErrStorage, path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStorage, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptDocument, path, err)
	}
	return nil
}

func encode(f *os.File, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %w", ErrStorage, path, err)
	}
	data = append(data, '\n')

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek %s: %w", ErrStorage, path, err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate %s: %w", ErrStorage, path, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrStorage, path, err)
	}
	return nil
}
