package download

import (
	"path/filepath"
	"sync"
)

// dirLocks hands out one mutex per destination directory. Entries are kept
// for the lifetime of the Downloader; the set of directories a process
// writes to is small.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: map[string]*sync.Mutex{}}
}

// lock acquires the mutex for dir and returns its release function.
func (d *dirLocks) lock(dir string) func() {
	key := filepath.Clean(dir)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	d.mu.Lock()
	m, ok := d.locks[key]
	if !ok {
		m = &sync.Mutex{}
		d.locks[key] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}
