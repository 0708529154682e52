package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/aristath/hybrid/internal/events"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamHeartbeat    = 30 * time.Second
)

// StreamMessage is one websocket message of a run stream.
type StreamMessage struct {
	Type string      `json:"type"` // evaluation, run or heartbeat
	Data interface{} `json:"data,omitempty"`
}

// HandleStreamRun handles GET /api/runs/{id}/stream.
//
// The stream sends every evaluation of the run in sequence order, starting
// with those already made, then the final run summary, and closes normally.
func (h *Handler) HandleStreamRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.service.Get(id); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to accept run stream")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	// Clients only listen; CloseRead handles their close frames
	ctx := conn.CloseRead(r.Context())

	// Subscribe before reading the backlog so no evaluation falls in between
	notify := make(chan struct{}, 1)
	if em := h.service.Events(); em != nil {
		subID := em.Bus().Subscribe(func(e events.Event) {
			if e.Data["run_id"] != id {
				return
			}
			select {
			case notify <- struct{}{}:
			default:
			}
		}, events.EvaluationCompleted)
		defer em.Bus().Unsubscribe(subID)
	}
	finished := h.service.Finished(id)

	h.log.Debug().Str("run_id", id).Msg("Client connected to run stream")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	next := 0
	flush := func() error {
		history, err := h.service.HistorySince(id, next)
		if err != nil {
			return err
		}
		for _, ev := range history {
			if ev.Sequence < next {
				continue
			}
			if err := h.send(ctx, conn, StreamMessage{Type: "evaluation", Data: ev}); err != nil {
				return err
			}
			next = ev.Sequence + 1
		}
		return nil
	}

	if err := flush(); err != nil {
		h.log.Debug().Err(err).Str("run_id", id).Msg("Run stream closed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("run_id", id).Msg("Client disconnected from run stream")
			return

		case <-notify:
			if err := flush(); err != nil {
				h.log.Debug().Err(err).Str("run_id", id).Msg("Run stream closed")
				return
			}

		case <-heartbeat.C:
			if err := h.send(ctx, conn, StreamMessage{Type: "heartbeat"}); err != nil {
				return
			}

		case <-finished:
			if err := flush(); err != nil {
				h.log.Debug().Err(err).Str("run_id", id).Msg("Run stream closed")
				return
			}
			run, err := h.service.Get(id)
			if err != nil {
				conn.Close(websocket.StatusGoingAway, "run deleted")
				return
			}
			if err := h.send(ctx, conn, StreamMessage{Type: "run", Data: run}); err != nil {
				return
			}
			conn.Close(websocket.StatusNormalClosure, string(run.State))
			return
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
