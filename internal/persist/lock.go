package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
)

// ErrInUse is returned when another process holds the rule store.
var ErrInUse = errors.New("rule store is in use by a running daemon")

// lockedKV holds an exclusive lock on <path>.lock until closed, so only one
// process at a time owns and writes the rule document.
type lockedKV struct {
	KV
	lock *daemon.LockFile
}

// OpenLocked locks the store at path for the life of the returned KV and
// opens it. It fails with ErrInUse while another process holds the lock.
func OpenLocked(backend Backend, path string) (KV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	lock, err := daemon.OpenLockFile(path+".lock", 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lock.Lock(); err != nil {
		lock.Close()
		if errors.Is(err, daemon.ErrWouldBlock) {
			return nil, ErrInUse
		}
		return nil, fmt.Errorf("failed to lock %s: %w", lock.Name(), err)
	}
	if err := lock.WritePid(); err != nil {
		log.Debugf("Writing pid to %s: %v", lock.Name(), err)
	}

	kv, err := Open(backend, path)
	if err != nil {
		lock.Unlock()
		lock.Close()
		return nil, err
	}
	return &lockedKV{KV: kv, lock: lock}, nil
}

// Close closes the store, then releases the lock. The lock file stays in
// place; removing it would let a waiting process lock an unlinked file.
func (l *lockedKV) Close() error {
	err := l.KV.Close()
	if uerr := l.lock.Unlock(); err == nil {
		err = uerr
	}
	if cerr := l.lock.Close(); err == nil {
		err = cerr
	}
	return err
}
