package presence

import (
	"encoding/json"
	"log/slog"
	"time"

	v1 "beacon/shared/contracts/presence/v1"
)

// Broadcaster turns registry transitions into presence_state envelopes and
// fans them out to every recipient of the event.
//
// Fanout is best-effort and never blocks: a recipient whose queue is full or
// that is shutting down is skipped. A client that misses one snapshot gets a
// newer, fully-consistent one on the next transition.
type Broadcaster struct {
	log *slog.Logger
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{log: log}
}

// PresenceChanged implements Subscriber.
func (b *Broadcaster) PresenceChanged(ev Event) {
	payload, err := json.Marshal(v1.PresenceStatePayload{Online: ev.Online})
	if err != nil {
		b.log.Error("presence.broadcast.marshal", "err", err)
		return
	}
	env := newEnvelope(v1.TypePresenceState, payload, time.Now().UTC())

	dropped := 0
	for _, c := range ev.Recipients {
		if c == nil {
			continue
		}

		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- env:
		default:
			// Drop rather than block the whole fanout.
			dropped++
		}
	}

	if dropped > 0 {
		b.log.Info("presence.broadcast.dropped", "dropped", dropped, "recipients", len(ev.Recipients))
	}
}
