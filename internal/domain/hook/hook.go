// Package hook provides the host hook payloads exchanged with the game plugin.
package hook

import (
	"strings"
	"sync"
	"time"

	"github.com/osa030/obsflow/internal/domain/level"
)

// StartResponse is how a component wants the host to start a level.
type StartResponse int

const (
	StartNone      StartResponse = iota // No preference
	StartImmediate                      // Start right away
	StartDelayed                        // Start after a delay
	StartHandled                        // The component starts the level itself
)

// String returns the string representation of the response.
func (r StartResponse) String() string {
	switch r {
	case StartNone:
		return "none"
	case StartImmediate:
		return "immediate"
	case StartDelayed:
		return "delayed"
	case StartHandled:
		return "handled"
	default:
		return "unknown"
	}
}

// ParseStartResponse parses the string form of a StartResponse.
func ParseStartResponse(s string) StartResponse {
	switch strings.ToLower(s) {
	case "immediate":
		return StartImmediate
	case "delayed":
		return StartDelayed
	case "handled":
		return StartHandled
	default:
		return StartNone
	}
}

// Response is a single component's answer to a level-starting request.
type Response struct {
	Source string
	Type   StartResponse
	Delay  time.Duration // Only for StartDelayed
}

// LevelStarting collects the responses of every component to an
// upcoming level start.
type LevelStarting struct {
	Level level.Info

	mu        sync.Mutex
	responses []Response
}

// NewLevelStarting creates a level-starting request.
func NewLevelStarting(info level.Info) *LevelStarting {
	return &LevelStarting{Level: info}
}

// SetResponse records a delayed start request. A zero delay counts as immediate.
func (l *LevelStarting) SetResponse(source string, delay time.Duration) {
	r := Response{Source: source, Type: StartImmediate}
	if delay > 0 {
		r.Type = StartDelayed
		r.Delay = delay
	}
	l.add(r)
}

// SetHandledResponse records that source starts the level itself.
func (l *LevelStarting) SetHandledResponse(source string) {
	l.add(Response{Source: source, Type: StartHandled})
}

func (l *LevelStarting) add(r Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.responses {
		if l.responses[i].Source == r.Source {
			l.responses[i] = r
			return
		}
	}
	l.responses = append(l.responses, r)
}

// Responses returns a copy of the recorded responses.
func (l *LevelStarting) Responses() []Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Response, len(l.responses))
	copy(out, l.responses)
	return out
}

// Result folds the responses into the one the host acts on:
// handled beats delayed, the longest delay wins, then immediate.
func (l *LevelStarting) Result() Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := Response{Type: StartNone}
	for _, r := range l.responses {
		switch {
		case r.Type > result.Type:
			result = r
		case r.Type == StartDelayed && result.Type == StartDelayed && r.Delay > result.Delay:
			result = r
		}
	}
	return result
}

// LevelStart tells components how the level is being started.
type LevelStart struct {
	Level    level.Info
	Response Response
}

// GameSceneActive is raised when the game scene became active.
type GameSceneActive struct {
	Level level.Info
	Stats *level.PlayerStats
}

// LevelFinished is raised when a level ended, before leaving the game scene.
type LevelFinished struct {
	Level   level.Info
	Results *level.Results // nil when the host has no results (e.g. multiplayer)
	Stats   *level.PlayerStats
}
