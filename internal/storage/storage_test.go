package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	N int `json:"n"`
}

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	return New(zerolog.Nop()), t.TempDir()
}

func TestRead_MissingFileYieldsZeroValue(t *testing.T) {
	s, dir := setupStore(t)

	items, err := Read[[]item](s, filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, items)

	obj, err := Read[map[string]any](s, filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Empty(t, obj)
}

func TestRead_EmptyFileYieldsZeroValue(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	items, err := Read[[]item](s, path)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReadExisting_Missing(t *testing.T) {
	s, dir := setupStore(t)

	_, err := ReadExisting[[]item](s, filepath.Join(dir, "nope.json"))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestCorruptDocumentIsNeverTreatedAsEmpty(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"n": 1},`), 0o644))

	_, err := Read[[]item](s, path)
	assert.ErrorIs(t, err, ErrCorruptDocument)

	err = Transact(s, path, func(doc *[]item) error {
		t.Fatal("mutator must not run on a corrupt document")
		return nil
	})
	assert.ErrorIs(t, err, ErrCorruptDocument)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"n": 1},`, string(raw))
}

func TestTransact_CreatesAndAppends(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "nested", "items.json")

	for i := 1; i <= 3; i++ {
		require.NoError(t, Transact(s, path, func(doc *[]item) error {
			*doc = append(*doc, item{N: i})
			return nil
		}))
	}

	items, err := Read[[]item](s, path)
	require.NoError(t, err)
	assert.Equal(t, []item{{1}, {2}, {3}}, items)
}

func TestTransact_MutatorErrorLeavesFileUntouched(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "items.json")
	require.NoError(t, Overwrite(s, path, []item{{N: 7}}))

	boom := errors.New("boom")
	err := Transact(s, path, func(doc *[]item) error {
		*doc = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)

	items, err := Read[[]item](s, path)
	require.NoError(t, err)
	assert.Equal(t, []item{{N: 7}}, items)
}

func TestTransact_SkipWrite(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "items.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"n":1}]`), 0o644))

	err := Transact(s, path, func(doc *[]item) error {
		(*doc)[0].N = 99
		return ErrSkipWrite
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"n":1}]`, string(raw))
}

func TestTransactExisting_DoesNotCreate(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "gone.json")

	err := TransactExisting(s, path, func(doc *[]item) error { return nil })
	assert.ErrorIs(t, err, ErrMissing)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestTransact_NoLostUpdates(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "items.json")
	const n = 100

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- Transact(s, path, func(doc *[]item) error {
				snapshot := append([]item(nil), *doc...)
				runtime.Gosched()
				time.Sleep(time.Duration(i%3) * time.Millisecond)
				*doc = append(snapshot, item{N: i})
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items, err := Read[[]item](s, path)
	require.NoError(t, err)
	require.Len(t, items, n)

	seen := make(map[int]bool, n)
	for _, it := range items {
		seen[it.N] = true
	}
	assert.Len(t, seen, n)
}

func TestRead_BlocksWhileTransactionHoldsLock(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "items.json")
	require.NoError(t, Overwrite(s, path, []item{}))

	started := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- Transact(s, path, func(doc *[]item) error {
			close(started)
			<-release
			*doc = append(*doc, item{N: 1})
			return nil
		})
	}()
	<-started

	readDone := make(chan []item, 1)
	go func() {
		items, err := Read[[]item](s, path)
		if err != nil {
			panic(fmt.Sprintf("read: %v", err))
		}
		readDone <- items
	}()

	select {
	case <-readDone:
		t.Fatal("read completed while an exclusive transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-txDone)
	assert.Equal(t, []item{{N: 1}}, <-readDone)
}

func TestTransactExisting_FileRemovedWhileWaiting(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "items.json")
	require.NoError(t, Overwrite(s, path, []item{{N: 1}}))

	started := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- Transact(s, path, func(doc *[]item) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			if err := os.Remove(path); err != nil {
				return err
			}
			return ErrSkipWrite
		})
	}()
	<-started

	err := TransactExisting(s, path, func(doc *[]item) error {
		*doc = append(*doc, item{N: 2})
		return nil
	})
	assert.ErrorIs(t, err, ErrMissing)
	require.NoError(t, <-holderDone)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRemove(t *testing.T) {
	s, dir := setupStore(t)
	path := filepath.Join(dir, "items.json")
	require.NoError(t, Overwrite(s, path, []item{{N: 1}}))

	removed, err := s.Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(path)
	require.NoError(t, err)
	assert.False(t, removed)
}
