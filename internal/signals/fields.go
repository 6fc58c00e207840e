package signals

import "github.com/zoobzio/capitan"

// Field keys attached to dsd signals.
var (
	// KeyRuleID is the id of the rule concerned.
	KeyRuleID = capitan.NewStringKey("rule_id")

	// KeyIndex is the position of the rule in the store.
	KeyIndex = capitan.NewIntKey("index")

	// KeyChange is the kind of store mutation.
	KeyChange = capitan.NewStringKey("change")

	// KeyField is the rule field that was edited.
	KeyField = capitan.NewStringKey("field")

	// KeyCount is the number of rules involved.
	KeyCount = capitan.NewIntKey("count")

	// KeyOldState is the watch state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the watch state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message, when any.
	KeyError = capitan.NewStringKey("error")

	// KeyDebounce is the configured quiescence window.
	KeyDebounce = capitan.NewDurationKey("debounce")
)
