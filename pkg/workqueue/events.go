package workqueue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// EventType tags the queue lifecycle event union.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is a queue lifecycle event. Exactly the fields relevant to its Type
// are populated: Stage/Percentage for progress, Reason for failed.
type Event struct {
	Type       EventType `json:"type"`
	DeliveryID string    `json:"deliveryId"`
	JobID      string    `json:"jobId"`
	Stage      string    `json:"stage,omitempty"`
	Percentage int       `json:"percentage,omitempty"`
	Attempts   int       `json:"attempts"`
	Reason     string    `json:"reason,omitempty"`
}

func (q *Queue) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("marshal queue event")
		return
	}
	// Best-effort: subscribers reconcile by re-fetching job state.
	if err := q.rdb.Publish(ctx, q.eventsKey(), payload).Err(); err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("publish queue event")
	}
}

// Subscribe returns a typed stream of lifecycle events. The returned stop
// function closes the underlying subscription and, eventually, the channel.
func (q *Queue) Subscribe(ctx context.Context) (<-chan Event, func() error) {
	pubsub := q.rdb.Subscribe(ctx, q.eventsKey())
	out := make(chan Event, eventChanSize)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Error().Err(err).Str("payload", msg.Payload).Msg("decode queue event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close
}
