package model

import (
	"fmt"
	"strings"
	"time"
)

// HighImportanceThreshold marks memories that get a priority marker in
// rendered prompt blocks.
const HighImportanceThreshold = 0.7

const indexSummaryLimit = 40

// MemoryIndexItem is a compact one-line view of a memory for agent prompts
type MemoryIndexItem struct {
	ShortID    string
	TimeAgo    string
	Summary    string
	Importance float64
}

// NewMemoryIndexItem builds the prompt-line view of a memory
func NewMemoryIndexItem(m *Memory, now time.Time) MemoryIndexItem {
	return MemoryIndexItem{
		ShortID:    m.ID.Short(),
		TimeAgo:    timeAgo(now.Sub(m.CreatedAt)),
		Summary:    summarize(m.Content),
		Importance: m.EffectiveImportance(),
	}
}

// Format renders the item as "[id] (time ago) summary" with a "!" marker for
// high-importance memories.
func (i MemoryIndexItem) Format() string {
	marker := " "
	if i.Importance >= HighImportanceThreshold {
		marker = "!"
	}
	return fmt.Sprintf("[%s]%s(%s) %s", i.ShortID, marker, i.TimeAgo, i.Summary)
}

// FormatMemoryIndex renders one line per memory, in the given order
func FormatMemoryIndex(memories []*Memory, now time.Time) string {
	var b strings.Builder
	for _, m := range memories {
		b.WriteString(NewMemoryIndexItem(m, now).Format())
		b.WriteByte('\n')
	}
	return b.String()
}

func summarize(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= indexSummaryLimit {
		return content
	}
	return string(runes[:indexSummaryLimit]) + "…"
}

func timeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
