package types

// ChangeType classifies a status transition.
type ChangeType string

const (
	ChangeAvailable   ChangeType = "available"
	ChangeUnavailable ChangeType = "unavailable"
)

// StatusUnavailable is the single raw status value meaning "no stock".
// Every other raw value counts as stock; feeds use grades like "1H-high",
// "72H" or "comingSoon" that all mean orderable.
const StatusUnavailable = "unavailable"

// CallbackAction identifies the action encoded in an interactive button's
// callback payload.
type CallbackAction string

const (
	// CallbackAddToQueue asks the bot to place an order for the
	// configuration recovered from the token cache.
	CallbackAddToQueue CallbackAction = "add_to_queue"
)

// MaxHistoryEntries caps a subscription's transition history; the oldest
// entries are dropped first.
const MaxHistoryEntries = 100

// MaxCallbackDataBytes is the transport ceiling for an interactive button's
// callback payload.
const MaxCallbackDataBytes = 64
