package hook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/obsflow/internal/domain/level"
)

func TestLevelStarting_Result(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *LevelStarting)
		want  Response
	}{
		{
			name:  "no responses",
			setup: func(l *LevelStarting) {},
			want:  Response{Type: StartNone},
		},
		{
			name: "zero delay is immediate",
			setup: func(l *LevelStarting) {
				l.SetResponse("recording", 0)
			},
			want: Response{Source: "recording", Type: StartImmediate},
		},
		{
			name: "longest delay wins",
			setup: func(l *LevelStarting) {
				l.SetResponse("a", time.Second)
				l.SetResponse("b", 3*time.Second)
				l.SetResponse("c", 2*time.Second)
			},
			want: Response{Source: "b", Type: StartDelayed, Delay: 3 * time.Second},
		},
		{
			name: "handled beats delayed",
			setup: func(l *LevelStarting) {
				l.SetResponse("recording", 5*time.Second)
				l.SetHandledResponse("scene")
			},
			want: Response{Source: "scene", Type: StartHandled},
		},
		{
			name: "same source replaces its response",
			setup: func(l *LevelStarting) {
				l.SetHandledResponse("scene")
				l.SetResponse("scene", time.Second)
			},
			want: Response{Source: "scene", Type: StartDelayed, Delay: time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLevelStarting(level.Info{ID: "x"})
			tt.setup(l)
			assert.Equal(t, tt.want, l.Result())
		})
	}
}

func TestParseStartResponse(t *testing.T) {
	for _, r := range []StartResponse{StartNone, StartImmediate, StartDelayed, StartHandled} {
		assert.Equal(t, r, ParseStartResponse(r.String()))
	}
	assert.Equal(t, StartNone, ParseStartResponse("bogus"))
}
