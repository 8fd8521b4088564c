package chat

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"bayou-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelPusher struct {
	delivered chan []byte
	online    map[uuid.UUID]bool
}

func (p *channelPusher) PushTo(userID uuid.UUID, payload []byte) bool {
	if !p.online[userID] {
		return false
	}
	p.delivered <- payload
	return true
}

func TestFanoutDeliversEnvelopeToConnectedPeer(t *testing.T) {
	target := uuid.New()
	pusher := &channelPusher{
		delivered: make(chan []byte, 1),
		online:    map[uuid.UUID]bool{target: true},
	}

	system := actor.NewActorSystem()
	fanout := NewFanout(system, pusher, slog.Default(), utils.NewMetricsCollector())

	fanout.Publish(&Event{
		Name:    EventMessageDeleted,
		Target:  target,
		Payload: DeletedPayload{MessageID: target},
	})

	select {
	case payload := <-pusher.delivered:
		var envelope struct {
			Event string         `json:"event"`
			Data  DeletedPayload `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &envelope))
		assert.Equal(t, EventMessageDeleted, envelope.Event)
		assert.Equal(t, target, envelope.Data.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestFanoutSwallowsOfflinePeer(t *testing.T) {
	pusher := &channelPusher{
		delivered: make(chan []byte, 1),
		online:    map[uuid.UUID]bool{},
	}

	system := actor.NewActorSystem()
	fanout := NewFanout(system, pusher, slog.Default(), utils.NewMetricsCollector())

	// Publishing toward an offline peer must neither block nor panic.
	fanout.Publish(&Event{Name: EventNewMessage, Target: uuid.New(), Payload: DeletedPayload{}})

	select {
	case <-pusher.delivered:
		t.Fatal("nothing should have been delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFanoutPreservesPerMessageOrder(t *testing.T) {
	target := uuid.New()
	pusher := &channelPusher{
		delivered: make(chan []byte, 16),
		online:    map[uuid.UUID]bool{target: true},
	}

	system := actor.NewActorSystem()
	fanout := NewFanout(system, pusher, slog.Default(), utils.NewMetricsCollector())

	names := []string{EventNewMessage, EventMessageEdited, EventMessageEdited, EventMessageDeleted}
	for _, name := range names {
		fanout.Publish(&Event{Name: name, Target: target, Payload: DeletedPayload{}})
	}

	for _, want := range names {
		select {
		case payload := <-pusher.delivered:
			var envelope struct {
				Event string `json:"event"`
			}
			require.NoError(t, json.Unmarshal(payload, &envelope))
			assert.Equal(t, want, envelope.Event)
		case <-time.After(2 * time.Second):
			t.Fatal("missing event")
		}
	}
}
