package feed

import (
	"sort"
	gosync "sync"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/model"
)

// Store is the ordered, deduplicated and optionally bounded set of notes
// held by the client. Merge is the only operation that changes membership
// or order; every method is safe for concurrent use and readers always get
// copies.
type Store struct {
	mu       gosync.RWMutex
	notes    []*model.Note
	byID     map[model.NoteID]*model.Note
	maxNotes int

	lastSeen      model.Timestamp
	lastSeenKnown bool

	loading   bool
	hasLoaded bool

	subsMu  gosync.Mutex
	subs    map[int]func(Event)
	nextSub int

	log logrus.FieldLogger
}

// NewStore creates an empty store. maxNotes <= 0 means unbounded.
func NewStore(maxNotes int, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxNotes < 0 {
		maxNotes = 0
	}
	return &Store{
		byID:     make(map[model.NoteID]*model.Note),
		maxNotes: maxNotes,
		subs:     make(map[int]func(Event)),
		log:      log,
	}
}

// Merge reconciles raw records into the store and reports whether any
// note was added, visibly updated or removed. A record without a subject
// object evicts the note with its id, if held. When filterTag is set, every
// valid record is marked as matching that filter view.
func (s *Store) Merge(raws []model.RawNote, filterTag string) bool {
	s.mu.Lock()
	changed := s.mergeLocked(raws, filterTag)
	s.mu.Unlock()

	if changed {
		s.emit(EventStoreChanged)
	}
	return changed
}

// mergePage merges a listing response and raises the seen high-water mark
// under the same lock, so observers see one consistent change.
func (s *Store) mergePage(raws []model.RawNote, filterTag string, lastSeen model.Timestamp) bool {
	s.mu.Lock()
	changed := s.mergeLocked(raws, filterTag)
	if s.observeLastSeenLocked(lastSeen) {
		changed = true
	}
	s.hasLoaded = true
	s.mu.Unlock()

	if changed {
		s.emit(EventStoreChanged)
	}
	return changed
}

func (s *Store) mergeLocked(raws []model.RawNote, filterTag string) bool {
	changed := false

	for _, raw := range raws {
		existing, known := s.byID[raw.ID]

		if !raw.Valid() {
			if known {
				s.removeLocked(raw.ID)
				changed = true
			}
			s.log.WithField("note_id", raw.ID).Debug("dropping note without subject")
			continue
		}

		if known {
			updated, err := existing.Apply(raw)
			if err != nil {
				s.removeLocked(raw.ID)
				changed = true
				s.log.WithError(err).WithField("note_id", raw.ID).Debug("dropping invalid note")
				continue
			}
			if filterTag != "" && !existing.QueriedTypes[filterTag] {
				if existing.QueriedTypes == nil {
					existing.QueriedTypes = make(map[string]bool)
				}
				existing.QueriedTypes[filterTag] = true
				updated = true
			}
			if updated {
				changed = true
			}
			continue
		}

		note, err := model.NewNote(raw)
		if err != nil {
			s.log.WithError(err).WithField("note_id", raw.ID).Debug("dropping invalid note")
			continue
		}
		if filterTag != "" {
			note.QueriedTypes = map[string]bool{filterTag: true}
		}
		s.notes = append(s.notes, &note)
		s.byID[note.ID] = &note
		changed = true
	}

	s.sortLocked()
	if s.trimLocked() {
		changed = true
	}
	return changed
}

// sortLocked orders notes newest first. Ties keep their current order.
func (s *Store) sortLocked() {
	sort.SliceStable(s.notes, func(i, j int) bool {
		return s.notes[i].Timestamp > s.notes[j].Timestamp
	})
}

// trimLocked evicts the oldest notes while the store is over capacity.
func (s *Store) trimLocked() bool {
	if s.maxNotes <= 0 {
		return false
	}
	trimmed := false
	for len(s.notes) > s.maxNotes {
		last := s.notes[len(s.notes)-1]
		s.notes = s.notes[:len(s.notes)-1]
		delete(s.byID, last.ID)
		trimmed = true
	}
	return trimmed
}

func (s *Store) removeLocked(id model.NoteID) {
	delete(s.byID, id)
	for i, n := range s.notes {
		if n.ID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			return
		}
	}
}

// Restore seeds the store from a persisted snapshot. Notes already held
// win over restored copies.
func (s *Store) Restore(notes []model.Note) {
	s.mu.Lock()
	added := false
	for _, n := range notes {
		if n.Subject == nil {
			continue
		}
		if _, ok := s.byID[n.ID]; ok {
			continue
		}
		c := n.Clone()
		s.notes = append(s.notes, &c)
		s.byID[c.ID] = &c
		added = true
	}
	s.sortLocked()
	s.trimLocked()
	s.mu.Unlock()

	if added {
		s.emit(EventStoreChanged)
	}
}

// Len returns the number of notes held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// MaxNotes returns the capacity, or 0 when unbounded.
func (s *Store) MaxNotes() int {
	return s.maxNotes
}

// Get returns a copy of the note with the given id.
func (s *Store) Get(id model.NoteID) (model.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[id]
	if !ok {
		return model.Note{}, false
	}
	return n.Clone(), true
}

// Notes returns copies of all notes, newest first.
func (s *Store) Notes() []model.Note {
	return s.filter(func(model.Note) bool { return true })
}

// IDs returns the ids of the notes matching fn, newest first. A nil fn
// matches every note.
func (s *Store) IDs(fn func(model.Note) bool) []model.NoteID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []model.NoteID
	for _, n := range s.notes {
		if fn == nil || fn(*n) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (s *Store) filter(fn func(model.Note) bool) []model.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Note, 0, len(s.notes))
	for _, n := range s.notes {
		if fn(*n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// MostRecentTimestamp returns the timestamp of the newest note.
func (s *Store) MostRecentTimestamp() (model.Timestamp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.notes) == 0 {
		return 0, false
	}
	return s.notes[0].Timestamp, true
}

// AllBodiesLoaded reports whether every held note has its body.
func (s *Store) AllBodiesLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notes {
		if n.Body == nil {
			return false
		}
	}
	return true
}

// LastSeen returns the seen high-water mark; ok is false while unknown.
func (s *Store) LastSeen() (ts model.Timestamp, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen, s.lastSeenKnown
}

// ObserveLastSeen raises the high-water mark to ts. It never lowers a
// known mark and reports whether the mark moved.
func (s *Store) ObserveLastSeen(ts model.Timestamp) bool {
	s.mu.Lock()
	moved := s.observeLastSeenLocked(ts)
	s.mu.Unlock()

	if moved {
		s.emit(EventStoreChanged)
	}
	return moved
}

func (s *Store) observeLastSeenLocked(ts model.Timestamp) bool {
	if s.lastSeenKnown && ts <= s.lastSeen {
		return false
	}
	s.lastSeen = ts
	s.lastSeenKnown = true
	return true
}

// ResetLastSeen forgets the high-water mark so that the next listing
// re-derives it from the service.
func (s *Store) ResetLastSeen() {
	s.mu.Lock()
	wasKnown := s.lastSeenKnown
	s.lastSeen = 0
	s.lastSeenKnown = false
	s.mu.Unlock()

	if wasKnown {
		s.emit(EventStoreChanged)
	}
}

// UnreadCount returns how many notes have unseen increments.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notes {
		if n.IsUnread() {
			count++
		}
	}
	return count
}

// NewSince returns the notes newer than the seen high-water mark. It is
// empty while the mark is unknown.
func (s *Store) NewSince() []model.Note {
	last, ok := s.LastSeen()
	if !ok {
		return nil
	}
	return s.filter(func(n model.Note) bool { return n.Timestamp > last })
}

// NumberNew returns len(NewSince()).
func (s *Store) NumberNew() int {
	return len(s.NewSince())
}

// ByFilter returns the notes of a named filter view. "unread" and
// "latest" are structural; any other name is a type category. Unknown
// names yield nothing.
func (s *Store) ByFilter(name string) []model.Note {
	switch name {
	case model.FilterUnread:
		return s.filter(func(n model.Note) bool { return n.IsUnread() })
	case model.FilterLatest:
		return s.filter(func(n model.Note) bool { return n.QueriedTypes[model.FilterLatest] })
	}
	if _, ok := model.CategoryTypes(name); !ok {
		return []model.Note{}
	}
	return s.filter(func(n model.Note) bool { return model.InCategory(name, n.Type) })
}

// Loading reports whether a page load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// HasLoaded reports whether at least one page load has succeeded.
func (s *Store) HasLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasLoaded
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
