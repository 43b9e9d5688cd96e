package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

// Event is the wire shape of one database update notification.
type Event struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Handler receives decoded feed events.
type Handler func(name string, kind shardsync.EventKind)

// subscription is the view of an active feed subscription the listener needs.
type subscription interface {
	IsValid() bool
	Unsubscribe() error
}

// bus abstracts the subscribe side of the message bus so tests can stand in
// for the NATS connection.
type bus interface {
	Subscribe(subject string, handler nats.MsgHandler) (subscription, error)
}

type natsBus struct{ nc *nats.Conn }

func (b natsBus) Subscribe(subject string, handler nats.MsgHandler) (subscription, error) {
	sub, err := b.nc.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Listener subscribes to the database update feed and forwards events to the
// scheduler. A lost subscription is retried after a fixed backoff instead of
// failing permanently; the feed itself is durable, so missed events resurface
// through the general replication protocol.
type Listener struct {
	bus     bus
	subject string
	backoff time.Duration
	handler Handler
	stopCh  chan struct{}
}

// NewListener creates a feed listener on subject.
func NewListener(nc *nats.Conn, subject string, backoff time.Duration, handler Handler) *Listener {
	return newListener(natsBus{nc: nc}, subject, backoff, handler)
}

func newListener(b bus, subject string, backoff time.Duration, handler Handler) *Listener {
	return &Listener{
		bus:     b,
		subject: subject,
		backoff: backoff,
		handler: handler,
		stopCh:  make(chan struct{}),
	}
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop ends the subscription.
func (l *Listener) Stop() { close(l.stopCh) }

func (l *Listener) run(ctx context.Context) {
	for {
		sub, err := l.bus.Subscribe(l.subject, l.dispatch)
		if err != nil {
			slog.Error("could not subscribe to update feed, retrying",
				slog.String("subject", l.subject), slog.Any("error", err))
			if !l.wait(ctx) {
				return
			}
			continue
		}
		slog.Info("listening on update feed", slog.String("subject", l.subject))

		if !l.watch(ctx, sub) {
			_ = sub.Unsubscribe()
			return
		}
		// Subscription went invalid; back off and resubscribe.
		_ = sub.Unsubscribe()
		slog.Warn("update feed subscription lost, resubscribing",
			slog.String("subject", l.subject), slog.Duration("backoff", l.backoff))
		if !l.wait(ctx) {
			return
		}
	}
}

// watch blocks until the subscription dies (returns true) or the listener is
// told to stop (returns false).
func (l *Listener) watch(ctx context.Context, sub subscription) bool {
	ticker := time.NewTicker(l.backoff)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-l.stopCh:
			return false
		case <-ticker.C:
			if !sub.IsValid() {
				return true
			}
		}
	}
}

func (l *Listener) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-time.After(l.backoff):
		return true
	}
}

// Dispatch decodes one raw feed message and forwards it. Unrecognized kinds
// are logged and dropped.
func (l *Listener) dispatch(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Warn("dropping malformed feed event", slog.Any("error", err))
		return
	}
	switch ev.Kind {
	case "updated":
		l.handler(ev.Name, shardsync.Updated)
	case "deleted":
		l.handler(ev.Name, shardsync.Deleted)
	default:
		slog.Warn("dropping feed event with unknown kind",
			slog.String("name", ev.Name), slog.String("kind", ev.Kind))
	}
}
