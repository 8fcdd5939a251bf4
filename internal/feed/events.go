package feed

// Event tells observers to query the store again. Events carry no payload.
type Event int

const (
	// EventStoreChanged fires once per merge that added, updated or
	// removed notes, and when the seen high-water mark moves.
	EventStoreChanged Event = iota
	EventLoadingStarted
	EventLoadingEnded
	EventLoadingFailed
)

func (e Event) String() string {
	switch e {
	case EventStoreChanged:
		return "store-changed"
	case EventLoadingStarted:
		return "loading-started"
	case EventLoadingEnded:
		return "loading-ended"
	case EventLoadingFailed:
		return "loading-failed"
	default:
		return "unknown"
	}
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn runs on the goroutine that caused the event, after the
// store lock is released; it must not block.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

// emit delivers e to every subscriber.
func (s *Store) emit(e Event) {
	s.subsMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
