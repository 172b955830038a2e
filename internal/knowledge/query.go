package knowledge

// Predicate selects events from the store's log.
type Predicate func(Event) bool

// Cursor is a lazy, restartable iterator over store events matching a
// predicate. The underlying log is append-only, so a cursor remains valid
// while new events arrive; Next observes events appended after the cursor
// position as it reaches them.
type Cursor struct {
	store *Store
	pred  Predicate
	pos   int
}

// Query returns a cursor over events matching pred, starting from the
// beginning of the log. A nil predicate matches every event.
func (s *Store) Query(pred Predicate) *Cursor {
	if pred == nil {
		pred = func(Event) bool { return true }
	}
	return &Cursor{store: s, pred: pred}
}

// Next returns the next matching event. The second return value is false
// when the cursor has exhausted the log.
func (c *Cursor) Next() (Event, bool) {
	for {
		c.store.mu.RLock()
		if c.pos >= len(c.store.log) {
			c.store.mu.RUnlock()
			return Event{}, false
		}
		event := c.store.log[c.pos]
		c.store.mu.RUnlock()

		c.pos++
		if c.pred(event) {
			return event, true
		}
	}
}

// Restart rewinds the cursor to the beginning of the log.
func (c *Cursor) Restart() {
	c.pos = 0
}

// Collect drains the cursor from its current position and returns all
// matching events.
func (c *Cursor) Collect() []Event {
	var out []Event
	for {
		event, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, event)
	}
}
