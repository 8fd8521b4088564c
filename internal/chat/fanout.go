package chat

import (
	"encoding/json"
	"log/slog"

	"bayou-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// ConnectionPusher is the slice of the connection directory the fan-out
// needs: a non-blocking push that reports whether anything was delivered.
type ConnectionPusher interface {
	PushTo(userID uuid.UUID, payload []byte) bool
}

// dispatcher is the actor draining committed events toward live peers.
// Its mailbox decouples fan-out from the mutation path: Publish is a
// fire-and-forget enqueue, and delivery failures stay inside the actor.
type dispatcher struct {
	pusher  ConnectionPusher
	log     *slog.Logger
	metrics *utils.MetricsCollector
}

func (d *dispatcher) Receive(ctx actor.Context) {
	evt, ok := ctx.Message().(*Event)
	if !ok {
		return
	}

	payload, err := json.Marshal(Envelope{Event: evt.Name, Data: evt.Payload})
	if err != nil {
		d.log.Error("failed to encode event", "event", evt.Name, "error", err)
		return
	}

	if d.pusher.PushTo(evt.Target, payload) {
		d.metrics.RecordFanoutPushed()
		return
	}
	// Best-effort only: no queue, no retry. The peer catches up on its
	// next full refetch.
	d.metrics.RecordFanoutDropped()
	d.log.Debug("event dropped, target not connected", "event", evt.Name, "userId", evt.Target)
}

// Fanout publishes mutation events through a dispatcher actor.
type Fanout struct {
	root *actor.RootContext
	pid  *actor.PID
}

func NewFanout(system *actor.ActorSystem, pusher ConnectionPusher, log *slog.Logger, metrics *utils.MetricsCollector) *Fanout {
	props := actor.PropsFromProducer(func() actor.Actor {
		return &dispatcher{pusher: pusher, log: log, metrics: metrics}
	})
	pid := system.Root.Spawn(props)
	return &Fanout{root: system.Root, pid: pid}
}

// Publish enqueues the event on the dispatcher's mailbox and returns
// immediately. Events published in order for one message id are delivered
// in that order; nothing is guaranteed across ids.
func (f *Fanout) Publish(evt *Event) {
	f.root.Send(f.pid, evt)
}
