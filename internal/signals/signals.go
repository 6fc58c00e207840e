// Package signals declares the capitan signals emitted by dsd components.
package signals

import "github.com/zoobzio/capitan"

// Store signals.
var (
	// StoreLoaded is emitted when the rule store is populated at startup.
	StoreLoaded = capitan.NewSignal(
		"dsd.store.loaded",
		"Rule store loaded",
	)

	// StoreChanged is emitted after every committed store mutation.
	StoreChanged = capitan.NewSignal(
		"dsd.store.changed",
		"Rule store mutated",
	)

	// StoreEditRejected is emitted when an edit hits a locked rule.
	StoreEditRejected = capitan.NewSignal(
		"dsd.store.edit.rejected",
		"Edit rejected on enabled rule",
	)
)

// Persistence signals.
var (
	// PersistScheduled is emitted when a debounced write is (re)scheduled.
	PersistScheduled = capitan.NewSignal(
		"dsd.persist.scheduled",
		"Persistence write scheduled",
	)

	// PersistSucceeded is emitted after the rule document is committed.
	PersistSucceeded = capitan.NewSignal(
		"dsd.persist.succeeded",
		"Rule document committed",
	)

	// PersistFailed is emitted when a write or flush fails.
	PersistFailed = capitan.NewSignal(
		"dsd.persist.failed",
		"Rule document write failed",
	)
)

// Coordinator signals.
var (
	// WatchStateChanged is emitted when a rule moves between watch states.
	WatchStateChanged = capitan.NewSignal(
		"dsd.watch.state.changed",
		"Rule watch state transition",
	)

	// WatchReported is emitted when the watcher service reports against a rule.
	WatchReported = capitan.NewSignal(
		"dsd.watch.reported",
		"Watcher service report received",
	)
)
