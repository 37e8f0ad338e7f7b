package usecase

import (
	"io"
	"iter"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"energyscope/internal/domain"
)

// DefaultSessionCapacity is used when NewSession is given a non-positive capacity.
const DefaultSessionCapacity = 50

// Session is the bounded in-memory conversation history. It is owned by a
// single orchestrator and is not safe for concurrent use.
type Session struct {
	ID string

	entries []domain.ConversationEntry // ring buffer
	start   int                        // index of the oldest entry
	size    int
	seq     uint64
	entropy io.Reader
	now     func() time.Time
}

// NewSession creates a session retaining at most capacity entries.
func NewSession(capacity int) *Session {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return &Session{
		ID:      ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		entries: make([]domain.ConversationEntry, capacity),
		entropy: entropy,
		now:     time.Now,
	}
}

// Append records e, assigning its ID, sequence number and timestamp. When
// the session is full the oldest entry is evicted.
func (s *Session) Append(e domain.ConversationEntry) domain.ConversationEntry {
	t := s.now()
	s.seq++
	e.Seq = s.seq
	e.Timestamp = t
	e.ID = ulid.MustNew(ulid.Timestamp(t), s.entropy).String()

	if s.size < len(s.entries) {
		s.entries[(s.start+s.size)%len(s.entries)] = e
		s.size++
	} else {
		s.entries[s.start] = e
		s.start = (s.start + 1) % len(s.entries)
	}
	return e
}

// Len returns the number of retained entries.
func (s *Session) Len() int { return s.size }

// Capacity returns the maximum number of retained entries.
func (s *Session) Capacity() int { return len(s.entries) }

// at returns the i-th retained entry, oldest first.
func (s *Session) at(i int) domain.ConversationEntry {
	return s.entries[(s.start+i)%len(s.entries)]
}

// Recent yields up to n entries, most recent first. n <= 0 yields all.
// The sequence is restartable and reflects the session at iteration time.
func (s *Session) Recent(n int) iter.Seq[domain.ConversationEntry] {
	return func(yield func(domain.ConversationEntry) bool) {
		count := s.size
		if n > 0 && n < count {
			count = n
		}
		for i := 0; i < count; i++ {
			if !yield(s.at(s.size - 1 - i)) {
				return
			}
		}
	}
}

// All yields every retained entry, oldest first.
func (s *Session) All() iter.Seq[domain.ConversationEntry] {
	return func(yield func(domain.ConversationEntry) bool) {
		for i := 0; i < s.size; i++ {
			if !yield(s.at(i)) {
				return
			}
		}
	}
}

// Last returns up to n most recent entries in chronological order.
func (s *Session) Last(n int) []domain.ConversationEntry {
	if n <= 0 || n > s.size {
		n = s.size
	}
	out := make([]domain.ConversationEntry, 0, n)
	for i := s.size - n; i < s.size; i++ {
		out = append(out, s.at(i))
	}
	return out
}

// Clear drops every entry. Sequence numbers keep increasing.
func (s *Session) Clear() {
	clear(s.entries)
	s.start, s.size = 0, 0
}
