package engine

// EventType discriminates turn events.
type EventType string

const (
	// EventContent carries a chunk of streamed answer text.
	EventContent EventType = "content"

	// EventDone marks successful completion of a turn. The checkpoint has
	// been committed when this event is observed.
	EventDone EventType = "done"

	// EventError marks a failed turn. Nothing was committed.
	EventError EventType = "error"
)

// TurnEvent is one item in a turn's event stream. Delta is set for
// EventContent and Err for EventError; both are zero on EventDone.
type TurnEvent struct {
	Type  EventType
	Delta string
	Err   error
}
