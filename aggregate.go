package kommand

// Aggregate is the consistency boundary that enforces invariants and
// originates events. It buffers recorded events until the command handler
// drains them into a Result.
type Aggregate interface {

	// EntityID returns the unique identifier of the aggregate.
	EntityID() string

	// UncommittedEvents returns all the events that are currently uncommitted.
	UncommittedEvents() []Envelope

	// ClearUncommittedEvents clears all uncommitted events from the aggregate.
	ClearUncommittedEvents()

	// Record appends a new event to the aggregate's uncommitted event list.
	Record(event Event, options ...EventOption)
}

// AggregateBase provides the uncommitted-event buffer shared by all
// aggregates. The buffer is owned exclusively by the aggregate instance and
// is not safe for concurrent use; callers sharing an aggregate across
// operations must synchronize externally.
type AggregateBase struct {
	id     string
	events []Envelope
}

// NewAggregateBase creates an aggregate base with an empty event buffer.
func NewAggregateBase(id string) *AggregateBase {
	return &AggregateBase{
		id:     id,
		events: make([]Envelope, 0),
	}
}

// EntityID implements the EntityID method of the Aggregate interface.
func (a *AggregateBase) EntityID() string {
	return a.id
}

// UncommittedEvents implements the UncommittedEvents method of the Aggregate
// interface. The returned slice keeps recording order.
func (a *AggregateBase) UncommittedEvents() []Envelope {
	return a.events
}

// ClearUncommittedEvents implements the ClearUncommittedEvents method of the
// Aggregate interface.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.events = nil
}

// Record wraps the event in an Envelope and appends it for later retrieval
// by UncommittedEvents.
func (a *AggregateBase) Record(event Event, options ...EventOption) {
	a.events = append(a.events, NewEnvelope(event, options...))
}

// DrainEvents returns the aggregate's uncommitted events and clears the
// buffer. It is the usual last step of a command handler before building
// its Result.
func DrainEvents(a Aggregate) []Envelope {
	events := a.UncommittedEvents()
	a.ClearUncommittedEvents()
	return events
}
