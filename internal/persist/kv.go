// Package persist makes the rule store durable: a key-value backend plus a
// bridge that debounces store changes into whole-document writes.
package persist

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/dsd/internal/rule"
)

// Key is the key under which the rule document is stored.
const Key = "copyConfs"

// ErrClosed is returned by a KV after Close.
var ErrClosed = errors.New("store is closed")

// KV is a durable key-value store. Set stages a value; Flush makes every
// staged value durable.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Flush() error
	Close() error
}

// Backend names a KV implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Open opens the KV implementation named by backend at path.
func Open(backend Backend, path string) (KV, error) {
	switch Backend(strings.ToLower(string(backend))) {
	case BackendFile, "":
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// LoadRules reads the persisted rule list. It returns nil when nothing was
// stored or the stored document is not a well-formed rule list.
func LoadRules(kv KV) []rule.SyncRule {
	data, ok, err := kv.Get(Key)
	if err != nil {
		log.Warnf("Failed to read rule document: %v", err)
		return nil
	}
	if !ok {
		log.Debug("No rule document stored yet")
		return nil
	}
	rules, err := rule.Decode(data)
	if err != nil {
		log.Warnf("Ignoring malformed rule document: %v", err)
		return nil
	}
	return rules
}
