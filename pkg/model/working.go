package model

import (
	"fmt"
	"strings"
	"time"
)

// Turn is a single conversation exchange kept in working memory
type Turn struct {
	Role    string
	Content string
	At      time.Time
}

// WorkingMemory is a bounded deque of recent conversation turns. When the
// capacity is exceeded the oldest turn drops first. It is not safe for
// concurrent use; the owning session serializes access.
type WorkingMemory struct {
	turns    []Turn
	capacity int
}

const DefaultWorkingMemoryCapacity = 20

// NewWorkingMemory creates a working memory holding at most capacity turns
func NewWorkingMemory(capacity int) *WorkingMemory {
	if capacity <= 0 {
		capacity = DefaultWorkingMemoryCapacity
	}
	return &WorkingMemory{capacity: capacity}
}

// Append records a turn, evicting the oldest one when full
func (w *WorkingMemory) Append(turn Turn) {
	w.turns = append(w.turns, turn)
	if len(w.turns) > w.capacity {
		w.turns = w.turns[len(w.turns)-w.capacity:]
	}
}

// Turns returns the retained turns, oldest first
func (w *WorkingMemory) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len returns the number of retained turns
func (w *WorkingMemory) Len() int {
	return len(w.turns)
}

// Format renders the turns as a prompt block, oldest first
func (w *WorkingMemory) Format() string {
	if len(w.turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range w.turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}
