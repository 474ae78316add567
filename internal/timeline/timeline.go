// Package timeline maintains the ordered list of chat messages a user sees.
//
// Four independent flows write to the list: the initial page load,
// loading older pages, realtime pushes and optimistic sends. Every write is
// a pure reducer from the previous Timeline and a delta to a new Timeline.
// Reducers never mutate their input and tolerate duplicate or reordered
// deltas, so any interleaving converges on a list with one entry per
// logical message in ascending time order.
package timeline

import (
	"sort"
	"time"

	"ad-assistant/backend/internal/models"
)

// Status tracks whether an entry has a durable identity yet
type Status string

const (
	StatusOptimistic Status = "optimistic"
	StatusConfirmed  Status = "confirmed"
)

// Entry is one message in the visible list
type Entry struct {
	// ID is the durable row id once confirmed and the correlation id before that
	ID          string                 `json:"id"`
	ClientID    string                 `json:"clientId,omitempty"`
	Role        models.Role            `json:"role"`
	IsUser      bool                   `json:"isUser"`
	Content     string                 `json:"content"`
	Type        string                 `json:"type"`
	Metadata    models.MessageMetadata `json:"metadata"`
	Implemented bool                   `json:"implemented"`
	Feedback    *models.Feedback       `json:"feedback"`
	CreatedAt   time.Time              `json:"timestamp"`
	Status      Status                 `json:"status"`
}

// Pending reports whether the entry is still waiting for persistence
func (e Entry) Pending() bool {
	return e.Status == StatusOptimistic
}

// FromMessage builds a confirmed entry from a persisted row
func FromMessage(m models.Message) Entry {
	meta := m.Metadata.Data()
	return Entry{
		ID:          m.ID,
		ClientID:    meta.OriginalClientID,
		Role:        m.Role,
		IsUser:      m.Role == models.RoleUser,
		Content:     m.Content,
		Type:        m.MessageType(),
		Metadata:    meta,
		Implemented: m.Implemented,
		Feedback:    m.Feedback,
		CreatedAt:   m.CreatedAt,
		Status:      StatusConfirmed,
	}
}

// Timeline is an immutable snapshot of the visible list and its paging state
type Timeline struct {
	Entries  []Entry    `json:"messages"`
	Cursor   *time.Time `json:"cursor,omitempty"`
	HasMore  bool       `json:"hasMore"`
	PageSize int        `json:"-"`
}

// New returns an empty timeline that expects more history
func New(pageSize int) Timeline {
	return Timeline{PageSize: pageSize, HasMore: true}
}

// Find returns the entry with the given id or correlation id
func (t Timeline) Find(id string) (Entry, bool) {
	if i := t.indexOf(id, ""); i >= 0 {
		return t.Entries[i], true
	}
	return Entry{}, false
}

func (t Timeline) indexOf(id, clientID string) int {
	for i, e := range t.Entries {
		if id != "" && (e.ID == id || e.ClientID == id) {
			return i
		}
		if clientID != "" && (e.ID == clientID || e.ClientID == clientID) {
			return i
		}
	}
	return -1
}

func (t Timeline) clone() Timeline {
	out := t
	out.Entries = make([]Entry, len(t.Entries), len(t.Entries)+1)
	copy(out.Entries, t.Entries)
	return out
}

// merge folds one confirmed entry into the list. An existing confirmed entry
// wins over the incoming one. An optimistic entry with a matching
// correlation id is bound to the durable identity in place.
func (t Timeline) merge(in Entry) Timeline {
	i := t.indexOf(in.ID, in.ClientID)
	if i >= 0 {
		existing := t.Entries[i]
		if existing.Status == StatusConfirmed {
			return t
		}
		out := t.clone()
		in.CreatedAt = existing.CreatedAt
		if in.ClientID == "" {
			in.ClientID = existing.ClientID
		}
		out.Entries[i] = in
		return out
	}

	out := t.clone()
	pos := sort.Search(len(out.Entries), func(j int) bool {
		return out.Entries[j].CreatedAt.After(in.CreatedAt)
	})
	out.Entries = append(out.Entries, Entry{})
	copy(out.Entries[pos+1:], out.Entries[pos:])
	out.Entries[pos] = in
	return out
}

func (t Timeline) mergeRows(rows []models.Message) Timeline {
	// rows arrive newest first
	for i := len(rows) - 1; i >= 0; i-- {
		t = t.merge(FromMessage(rows[i]))
	}
	return t
}

func (t Timeline) withCursorFrom(rows []models.Message) Timeline {
	for _, r := range rows {
		if t.Cursor == nil || r.CreatedAt.Before(*t.Cursor) {
			ts := r.CreatedAt
			t.Cursor = &ts
		}
	}
	return t
}

// InitialPage replaces the list with the newest page from the store. Entries
// not represented by the page survive when they are still pending or newer
// than the page, so a push or send that raced the load is not lost.
func InitialPage(t Timeline, rows []models.Message) Timeline {
	var newest time.Time
	for _, r := range rows {
		if r.CreatedAt.After(newest) {
			newest = r.CreatedAt
		}
	}

	out := Timeline{PageSize: t.PageSize, HasMore: len(rows) >= t.PageSize}
	out = out.withCursorFrom(rows).mergeRows(rows)
	for _, e := range t.Entries {
		if e.Pending() || e.CreatedAt.After(newest) {
			out = out.merge(e)
		}
	}
	return out
}

// OlderPage merges a page fetched strictly before the cursor
func OlderPage(t Timeline, rows []models.Message) Timeline {
	out := t.withCursorFrom(rows).mergeRows(rows)
	if len(rows) < t.PageSize {
		out.HasMore = false
	}
	return out
}

// Pushed merges a row delivered by the realtime channel and caps the list
// at the page size by dropping the oldest entries.
func Pushed(t Timeline, row models.Message) Timeline {
	out := t.merge(FromMessage(row))
	if out.PageSize > 0 && len(out.Entries) > out.PageSize {
		out.Entries = append([]Entry(nil), out.Entries[len(out.Entries)-out.PageSize:]...)
		oldest := out.Entries[0].CreatedAt
		out.Cursor = &oldest
		out.HasMore = true
	}
	return out
}

// Optimistic appends a pending entry at the end of the list
func Optimistic(t Timeline, e Entry) Timeline {
	if t.indexOf(e.ID, e.ClientID) >= 0 {
		return t
	}
	out := t.clone()
	if n := len(out.Entries); n > 0 && e.CreatedAt.Before(out.Entries[n-1].CreatedAt) {
		e.CreatedAt = out.Entries[n-1].CreatedAt
	}
	e.Status = StatusOptimistic
	out.Entries = append(out.Entries, e)
	return out
}

// Confirmed binds a persisted row to its optimistic entry
func Confirmed(t Timeline, row models.Message) Timeline {
	return t.merge(FromMessage(row))
}

// WithFeedback mirrors a persisted feedback change
func WithFeedback(t Timeline, id string, feedback *models.Feedback) Timeline {
	i := t.indexOf(id, "")
	if i < 0 {
		return t
	}
	out := t.clone()
	out.Entries[i].Feedback = feedback
	return out
}

// WithImplemented mirrors a persisted implemented flag
func WithImplemented(t Timeline, id string) Timeline {
	i := t.indexOf(id, "")
	if i < 0 {
		return t
	}
	out := t.clone()
	out.Entries[i].Implemented = true
	return out
}

// Cleared drops every entry and resets paging
func Cleared(t Timeline) Timeline {
	return New(t.PageSize)
}

// NextFeedback implements toggle semantics: choosing the current value
// clears it.
func NextFeedback(current *models.Feedback, requested models.Feedback) *models.Feedback {
	if current != nil && *current == requested {
		return nil
	}
	next := requested
	return &next
}
