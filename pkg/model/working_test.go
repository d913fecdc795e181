package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
)

func TestWorkingMemory(t *testing.T) {
	t.Run("drops oldest when full", func(t *testing.T) {
		w := model.NewWorkingMemory(3)
		now := time.Now()
		for _, content := range []string{"one", "two", "three", "four"} {
			w.Append(model.Turn{Role: "user", Content: content, At: now})
		}

		turns := w.Turns()
		gt.V(t, len(turns)).Equal(3)
		gt.V(t, turns[0].Content).Equal("two")
		gt.V(t, turns[2].Content).Equal("four")
	})

	t.Run("zero capacity falls back to default", func(t *testing.T) {
		w := model.NewWorkingMemory(0)
		for i := 0; i < model.DefaultWorkingMemoryCapacity+5; i++ {
			w.Append(model.Turn{Role: "user", Content: "x"})
		}
		gt.V(t, w.Len()).Equal(model.DefaultWorkingMemoryCapacity)
	})

	t.Run("format renders oldest first", func(t *testing.T) {
		w := model.NewWorkingMemory(5)
		w.Append(model.Turn{Role: "user", Content: "hello"})
		w.Append(model.Turn{Role: "assistant", Content: "hi"})

		gt.V(t, w.Format()).Equal("user: hello\nassistant: hi\n")
	})

	t.Run("empty format is empty", func(t *testing.T) {
		w := model.NewWorkingMemory(5)
		gt.V(t, w.Format()).Equal("")
	})
}
