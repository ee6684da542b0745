package engine

type EventType int

const (
	EventEntry EventType = iota
	EventTakeProfitHit
	EventStopHit
	EventEndOfData
	EventSizingUpdate
	EventCircuitBreaker
)

func (t EventType) String() string {
	switch t {
	case EventEntry:
		return "entry"
	case EventTakeProfitHit:
		return "take_profit"
	case EventStopHit:
		return "stop_loss"
	case EventEndOfData:
		return "end_of_data"
	case EventSizingUpdate:
		return "sizing"
	case EventCircuitBreaker:
		return "circuit_breaker"
	}
	return "unknown"
}

// MarshalText keeps event types readable in JSON output.
func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

type Event struct {
	Ts      int64             `json:"ts"`
	Bar     int               `json:"bar"`
	Type    EventType         `json:"type"`
	Details map[string]string `json:"details,omitempty"`
}

type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) {
	if l == nil {
		return
	}
	l.Events = append(l.Events, e)
}

// Count returns how many events of type t were logged.
func (l *EventLog) Count(t EventType) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func exitEventType(r ExitReason) EventType {
	switch r {
	case ExitTakeProfit:
		return EventTakeProfitHit
	case ExitStopLoss:
		return EventStopHit
	}
	return EventEndOfData
}
