package app

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mahyarmirrashed/dsd/internal/notice"
	"github.com/mahyarmirrashed/dsd/internal/rule"
	"github.com/mahyarmirrashed/dsd/internal/store"
)

// DeletedMessage is shown after a confirmed deletion.
const DeletedMessage = "rule deleted"

// DeletionGate holds at most one index awaiting confirmation before removal.
type DeletionGate struct {
	store   *store.Store
	notices *notice.Center

	mu     sync.Mutex
	index  int
	staged bool
}

// NewDeletionGate returns a gate with nothing staged.
func NewDeletionGate(s *store.Store, n *notice.Center) *DeletionGate {
	return &DeletionGate{store: s, notices: n}
}

// Stage marks index for deletion, replacing any earlier staged index.
// The store is not touched.
func (g *DeletionGate) Stage(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.index = index
	g.staged = true
}

// Staged returns the staged index, if any.
func (g *DeletionGate) Staged() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index, g.staged
}

// Cancel drops the staged index.
func (g *DeletionGate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.staged = false
}

// Confirm removes the staged rule and posts a success notice. It returns
// false when nothing was staged or the index no longer exists.
func (g *DeletionGate) Confirm() (rule.SyncRule, bool) {
	g.mu.Lock()
	index, staged := g.index, g.staged
	g.staged = false
	g.mu.Unlock()

	if !staged {
		return rule.SyncRule{}, false
	}
	removed, err := g.store.Remove(index)
	if err != nil {
		log.Warnf("Deleting rule %d: %v", index, err)
		g.notices.Post(err.Error(), notice.Error)
		return rule.SyncRule{}, false
	}
	log.Infof("Deleted rule %s (%s -> %s)", removed.ID, removed.From, removed.To)
	g.notices.Post(DeletedMessage, notice.Success)
	return removed, true
}
