package types

// ModelState is the lifecycle state of a model slot.
type ModelState string

const (
	StateUnloaded ModelState = "unloaded"
	StateLoading  ModelState = "loading"
	StateReady    ModelState = "ready"
	StateError    ModelState = "error"
	// StateCrashed marks a slot whose host process died while the model
	// was loading or resident. Readers derive it from a stale heartbeat
	// (see LivenessReport.CrashedView); the host itself never reports it.
	StateCrashed ModelState = "crashed"
)

// Slot is a named residency position a model occupies in the host.
type Slot string

const (
	SlotEmbedder  Slot = "embedder"
	SlotUtility   Slot = "utility"
	SlotReasoning Slot = "reasoning"
)

// LargeSlots are the two slots that share the single accelerator-resident
// position. At most one of them may be ready at any time.
var LargeSlots = []Slot{SlotUtility, SlotReasoning}

// IsLarge reports whether s occupies the accelerator large-model slot.
func (s Slot) IsLarge() bool {
	return s == SlotUtility || s == SlotReasoning
}

// Action identifies a host operation carried by a Request.
type Action string

const (
	ActionLoadEmbedder  Action = "load_embedder"
	ActionLoadUtility   Action = "load_utility"
	ActionLoadReasoning Action = "load_reasoning"
	ActionGenerate      Action = "generate"
	ActionEmbed         Action = "embed"
	ActionUnloadAll     Action = "unload_all"
	ActionStatus        Action = "status"
)

// LoadActionFor returns the load action for a slot.
func LoadActionFor(slot Slot) Action {
	switch slot {
	case SlotUtility:
		return ActionLoadUtility
	case SlotReasoning:
		return ActionLoadReasoning
	default:
		return ActionLoadEmbedder
	}
}

// SlotForLoadAction is the inverse of LoadActionFor.
func SlotForLoadAction(a Action) (Slot, bool) {
	switch a {
	case ActionLoadEmbedder:
		return SlotEmbedder, true
	case ActionLoadUtility:
		return SlotUtility, true
	case ActionLoadReasoning:
		return SlotReasoning, true
	}
	return "", false
}
