package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileKV keeps all keys in a single JSON object on disk. Flush replaces the
// whole file atomically: write to a temp file, fsync, rename over the target.
type FileKV struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
	dirty  bool
	closed bool
}

// OpenFile loads the document at path. A missing file yields an empty store;
// an unreadable document is logged and treated as empty.
func OpenFile(path string) (*FileKV, error) {
	kv := &FileKV{
		path:   path,
		values: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return kv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &kv.values); err != nil || kv.values == nil {
		log.Warnf("Store file %s is not a JSON object, starting empty", path)
		kv.values = make(map[string]json.RawMessage)
	}
	return kv, nil
}

func (kv *FileKV) Get(key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.closed {
		return nil, false, ErrClosed
	}
	v, ok := kv.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (kv *FileKV) Set(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.closed {
		return ErrClosed
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	kv.values[key] = append(json.RawMessage(nil), value...)
	kv.dirty = true
	return nil
}

func (kv *FileKV) Flush() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.closed {
		return ErrClosed
	}
	if !kv.dirty {
		return nil
	}
	if err := kv.writeLocked(); err != nil {
		return err
	}
	kv.dirty = false
	return nil
}

// Close flushes staged values and releases the store.
func (kv *FileKV) Close() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.closed {
		return nil
	}
	kv.closed = true
	if kv.dirty {
		return kv.writeLocked()
	}
	return nil
}

func (kv *FileKV) writeLocked() error {
	data, err := json.MarshalIndent(kv.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(kv.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(kv.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, kv.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", kv.path, err)
	}

	// Persist the rename itself; not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			log.Debugf("Directory sync of %s failed: %v", dir, err)
		}
		d.Close()
	}
	return nil
}
