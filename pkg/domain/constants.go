package domain

// Built-in type tags. Any other tag is registered by the host through the registry.
const (
	// TypeAny is accepted by every input and can be sent to every input.
	TypeAny = "any"
	// NoMessage is the tag of the marker token committed by outputs that produced nothing.
	NoMessage = "no_message"
	// TypeSignal is the payload tag carried between triggers and slots.
	TypeSignal = "signal"

	TypeInt        = "int"
	TypeFloat      = "float"
	TypeString     = "string"
	TypeBool       = "bool"
	TypeIntRange   = "range<int>"
	TypeFloatRange = "range<float>"
)

// DefaultTimerHistoryLength is the number of timer records kept per worker.
const DefaultTimerHistoryLength = 15

// DefaultTickFrequency is the tick rate (Hz) used for sources unless configured.
const DefaultTickFrequency = 30.0
