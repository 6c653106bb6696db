package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := New("error")
	withHint := WithHint(err, "try this fix")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, MarkTransient(nil))
	assert.Nil(t, MarkBudgetPaused(nil))
	assert.Nil(t, MarkFatal(nil))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindOf(t *testing.T) {
	base := New("orchestrator unreachable")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unmarked", base, KindUnknown},
		{"transient", MarkTransient(base), KindTransient},
		{"budget", MarkBudgetPaused(base), KindBudgetPaused},
		{"fatal", MarkFatal(base), KindFatal},
		{"wrapped fatal", Wrap(MarkFatal(base), "startup"), KindFatal},
		{"fatal wins", MarkFatal(MarkTransient(base)), KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMarkPreservesCause(t *testing.T) {
	err := Wrap(MarkFatal(ErrCorruptState), "load checkpoint")

	assert.True(t, Is(err, ErrCorruptState))
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "corrupt state")
}

func TestNewFatalf(t *testing.T) {
	err := NewFatalf("work source %q returned no jobs", "videos.json")

	assert.True(t, IsFatal(err))
	assert.Equal(t, `work source "videos.json" returned no jobs`, err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "budget_paused", KindBudgetPaused.String())
	assert.Equal(t, "fatal", KindFatal.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func ExampleKindOf() {
	err := MarkTransient(New("connection reset"))
	fmt.Println(KindOf(err))
	// Output: transient
}
