package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"
)

// Store is the persistence the synchronizer reads pages from and writes
// feedback to
type Store interface {
	ListPage(ctx context.Context, userID string, before *time.Time, limit int) ([]models.Message, error)
	GetByID(ctx context.Context, userID, id string) (*models.Message, error)
	UpdateFeedback(ctx context.Context, userID, id string, feedback *models.Feedback) error
}

// EventType names a change pushed to listeners
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventMessage   EventType = "message"
	EventConfirmed EventType = "confirmed"
	EventUpdated   EventType = "updated"
	EventStreaming EventType = "streaming"
	EventError     EventType = "error"
)

// Event is delivered to every listener after a change is applied
type Event struct {
	Type     EventType `json:"type"`
	Entry    *Entry    `json:"entry,omitempty"`
	Timeline *Timeline `json:"timeline,omitempty"`
	Text     string    `json:"text,omitempty"`
	Done     bool      `json:"done,omitempty"`
}

const listenerBuffer = 64

// ErrPending is returned for actions on an entry that has no row yet
var ErrPending = errors.New("message is not persisted yet")

// Synchronizer owns one user's live timeline. All writes go through apply,
// which runs a pure reducer under the lock and fans the result out.
type Synchronizer struct {
	userID   string
	pageSize int
	store    Store
	log      *logger.Logger

	mu          sync.Mutex
	state       Timeline
	loadingMore bool

	listenersMu sync.RWMutex
	listeners   map[int]chan Event
	nextID      int
}

// NewSynchronizer creates an empty timeline for userID
func NewSynchronizer(userID string, pageSize int, store Store, log *logger.Logger) *Synchronizer {
	return &Synchronizer{
		userID:    userID,
		pageSize:  pageSize,
		store:     store,
		log:       log.WithUserID(userID),
		state:     New(pageSize),
		listeners: make(map[int]chan Event),
	}
}

// UserID returns the owner of the timeline
func (s *Synchronizer) UserID() string {
	return s.userID
}

// Snapshot returns the current timeline
func (s *Synchronizer) Snapshot() Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) apply(reduce func(Timeline) Timeline) Timeline {
	s.mu.Lock()
	s.state = reduce(s.state)
	snapshot := s.state
	s.mu.Unlock()
	return snapshot
}

// LoadInitial fetches the newest page and replaces the list with it
func (s *Synchronizer) LoadInitial(ctx context.Context) (Timeline, error) {
	rows, err := s.store.ListPage(ctx, s.userID, nil, s.pageSize)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("load messages: %w", err)
	}
	snapshot := s.apply(func(t Timeline) Timeline { return InitialPage(t, rows) })
	s.log.Debug("Loaded initial page", "rows", len(rows), "has_more", snapshot.HasMore)
	s.emit(Event{Type: EventSnapshot, Timeline: &snapshot})
	return snapshot, nil
}

// LoadMore fetches the page older than the cursor. It is a no-op while
// another load is in flight or when history is exhausted.
func (s *Synchronizer) LoadMore(ctx context.Context) (Timeline, error) {
	s.mu.Lock()
	if s.loadingMore || !s.state.HasMore {
		snapshot := s.state
		s.mu.Unlock()
		return snapshot, nil
	}
	s.loadingMore = true
	cursor := s.state.Cursor
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loadingMore = false
		s.mu.Unlock()
	}()

	rows, err := s.store.ListPage(ctx, s.userID, cursor, s.pageSize)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("load older messages: %w", err)
	}
	snapshot := s.apply(func(t Timeline) Timeline { return OlderPage(t, rows) })
	s.log.Debug("Loaded older page", "rows", len(rows), "has_more", snapshot.HasMore)
	s.emit(Event{Type: EventSnapshot, Timeline: &snapshot})
	return snapshot, nil
}

// Refresh resets paging and reloads the newest page
func (s *Synchronizer) Refresh(ctx context.Context) (Timeline, error) {
	s.apply(func(t Timeline) Timeline {
		t.Cursor = nil
		t.HasMore = true
		return t
	})
	return s.LoadInitial(ctx)
}

// Clear empties the local list without touching the store
func (s *Synchronizer) Clear() Timeline {
	snapshot := s.apply(Cleared)
	s.emit(Event{Type: EventSnapshot, Timeline: &snapshot})
	return snapshot
}

// InsertOptimistic appends a pending entry before any persistence happens
func (s *Synchronizer) InsertOptimistic(e Entry) Entry {
	snapshot := s.apply(func(t Timeline) Timeline { return Optimistic(t, e) })
	inserted, _ := snapshot.Find(e.ID)
	s.emit(Event{Type: EventMessage, Entry: &inserted})
	return inserted
}

// Confirm binds a persisted row to its optimistic entry
func (s *Synchronizer) Confirm(row models.Message) Entry {
	snapshot := s.apply(func(t Timeline) Timeline { return Confirmed(t, row) })
	confirmed, _ := snapshot.Find(row.ID)
	s.emit(Event{Type: EventConfirmed, Entry: &confirmed})
	return confirmed
}

// ApplyPush merges a row delivered by the realtime channel. A push that
// binds a pending entry is reported as a confirmation and a push for a row
// already on screen emits nothing.
func (s *Synchronizer) ApplyPush(row models.Message) {
	var existed, wasPending bool
	snapshot := s.apply(func(t Timeline) Timeline {
		if i := t.indexOf(row.ID, row.ClientID()); i >= 0 {
			existed = true
			wasPending = t.Entries[i].Pending()
		}
		return Pushed(t, row)
	})
	entry, ok := snapshot.Find(row.ID)
	switch {
	case !ok:
		return
	case !existed:
		s.emit(Event{Type: EventMessage, Entry: &entry})
	case wasPending:
		s.emit(Event{Type: EventConfirmed, Entry: &entry})
	default:
		s.log.Debug("Push already represented", "message_id", row.ID)
	}
}

// ToggleFeedback persists the toggled feedback value and mirrors it once the
// store accepts it. Choosing the current value clears it.
func (s *Synchronizer) ToggleFeedback(ctx context.Context, id string, requested models.Feedback) (*models.Feedback, error) {
	var current *models.Feedback
	if e, ok := s.Snapshot().Find(id); ok {
		if e.Pending() {
			return nil, fmt.Errorf("message %s: %w", id, ErrPending)
		}
		id = e.ID
		current = e.Feedback
	} else {
		row, err := s.store.GetByID(ctx, s.userID, id)
		if err != nil {
			return nil, err
		}
		current = row.Feedback
	}

	next := NextFeedback(current, requested)
	if err := s.store.UpdateFeedback(ctx, s.userID, id, next); err != nil {
		return nil, fmt.Errorf("update feedback: %w", err)
	}

	snapshot := s.apply(func(t Timeline) Timeline { return WithFeedback(t, id, next) })
	if e, ok := snapshot.Find(id); ok {
		s.emit(Event{Type: EventUpdated, Entry: &e})
	}
	return next, nil
}

// MarkImplemented mirrors an implemented flag that was already persisted
func (s *Synchronizer) MarkImplemented(id string) {
	snapshot := s.apply(func(t Timeline) Timeline { return WithImplemented(t, id) })
	if e, ok := snapshot.Find(id); ok {
		s.emit(Event{Type: EventUpdated, Entry: &e})
	}
}

// Notify forwards a transient event, such as a streaming chunk, to listeners
func (s *Synchronizer) Notify(ev Event) {
	s.emit(ev)
}

// Listen registers a listener. The returned function unregisters it and
// closes the channel.
func (s *Synchronizer) Listen() (<-chan Event, func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, listenerBuffer)
	s.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
			close(ch)
		})
	}
}

// Listeners returns the number of registered listeners
func (s *Synchronizer) Listeners() int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners)
}

func (s *Synchronizer) emit(ev Event) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	for id, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
			s.log.Warn("Dropping timeline event for slow listener", "listener", id, "event", string(ev.Type))
		}
	}
}
