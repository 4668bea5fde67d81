package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/notification"
)

const (
	// eventBuffer is the number of notifications queued per client.
	eventBuffer = 64
	// heartbeatInterval keeps idle connections open through proxies.
	heartbeatInterval = 15 * time.Second
)

var errClientTooSlow = errors.New("event client too slow")

// eventStream adapts an SSE client to notification.Stream. Send never
// blocks; a full buffer drops the client.
type eventStream struct {
	ch      chan *notification.Notification
	dropped chan struct{}
	once    sync.Once
}

func newEventStream() *eventStream {
	return &eventStream{
		ch:      make(chan *notification.Notification, eventBuffer),
		dropped: make(chan struct{}),
	}
}

func (s *eventStream) Send(n *notification.Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		s.once.Do(func() { close(s.dropped) })
		return errClientTooSlow
	}
}

// handleEvents streams notifications as server-sent events, starting
// with a status snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	notifManager := s.session.GetNotificationManager()
	stream := newEventStream()
	subscriptionID := notifManager.Subscribe(stream)
	defer notifManager.Unsubscribe(subscriptionID)

	if err := writeEvent(w, "status", 0, toStatusResponse(s.session.GetStatus())); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stream.dropped:
			zlog.Warn().Msgf("event client dropped, too slow: id=%s", subscriptionID)
			return
		case n := <-stream.ch:
			if err := writeEvent(w, string(n.Type), n.SequenceNo, n); err != nil {
				zlog.Debug().Err(err).Msgf("event client gone: id=%s", subscriptionID)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
