package engine

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rscheiwe/open-skills/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// A subscriber that falls this far behind is disconnected rather than
// allowed to block execution.
const subscriberBufferSize = 64

// ErrSubscriberOverflow is reported by Subscription.Err after the bus drops
// a subscriber that stopped draining its channel.
var ErrSubscriberOverflow = errors.New("event subscriber fell behind and was dropped")

// Bus fans run events out to per-run subscribers. Sequence numbers are
// assigned under the same lock that delivers each event, contiguous from 1
// within a run, so every subscriber observes strictly increasing sequences
// with no gaps. It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a run finishes) receive a final status snapshot and a
// closed channel instead of blocking forever. Each marker is a few bytes,
// which is acceptable for the expected run volume.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	seq        int64
	subs       map[int]*Subscription
	nextID     int
	closed     bool
	lastStatus string
}

// Subscription is one subscriber's view of a run's event stream. C is closed
// when the run finishes, the subscription is cancelled, or the subscriber
// overflows; Err distinguishes the overflow case.
type Subscription struct {
	C <-chan model.Event

	bus   *Bus
	runID string
	id    int
	ch    chan model.Event

	mu  sync.Mutex
	err error
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once and after the run has finished.
func (s *Subscription) Cancel() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	t, ok := s.bus.topics[s.runID]
	if !ok {
		return
	}
	if _, ok := t.subs[s.id]; !ok {
		return
	}
	delete(t.subs, s.id)
	close(s.ch)
}

// Err reports why C was closed: nil for a normal close, ErrSubscriberOverflow
// if the bus dropped this subscriber.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

// Subscribe attaches a subscriber to the given run's event stream. If the run
// has already reported a status, the subscriber first receives a snapshot
// event carrying the current status and the run's latest sequence number.
// The snapshot consumes no sequence of its own, so the live stream continues
// without a gap. If the run has already finished, the snapshot (when one is
// available) is followed by an immediate close.
func (b *Bus) Subscribe(runID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.ensureTopic(runID)

	if t.closed {
		ch := make(chan model.Event, 1)
		if t.lastStatus != "" {
			ch <- snapshotEvent(runID, t)
		}
		close(ch)
		return &Subscription{C: ch, ch: ch}
	}

	ch := make(chan model.Event, subscriberBufferSize)
	if t.lastStatus != "" {
		ch <- snapshotEvent(runID, t)
	}

	id := t.nextID
	t.nextID++
	sub := &Subscription{C: ch, bus: b, runID: runID, id: id, ch: ch}
	t.subs[id] = sub
	return sub
}

// PublishStatus emits a status event and retains the status for snapshots.
func (b *Bus) PublishStatus(runID, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.ensureTopic(runID)
	if t.closed {
		return
	}
	t.lastStatus = status
	b.deliverLocked(runID, t, model.EventStatus, model.StatusPayload(status))
}

// PublishComplete emits the final complete event and retains the terminal
// status for snapshots.
func (b *Bus) PublishComplete(runID, status string, durationMS int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.ensureTopic(runID)
	if t.closed {
		return
	}
	t.lastStatus = status
	b.deliverLocked(runID, t, model.EventComplete, model.CompletePayload(status, durationMS))
}

// Publish emits an event of the given kind to all subscribers of the run.
func (b *Bus) Publish(runID, kind string, payload json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.ensureTopic(runID)
	if t.closed {
		return
	}
	b.deliverLocked(runID, t, kind, payload)
}

// Close signals that no more events will be published for the given run.
// All subscriber channels are closed; future Subscribe calls receive the
// retained snapshot, if any, followed by an immediate close.
func (b *Bus) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.ensureTopic(runID)
	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
}

func (b *Bus) ensureTopic(runID string) *topic {
	t, ok := b.topics[runID]
	if !ok {
		t = &topic{subs: make(map[int]*Subscription)}
		b.topics[runID] = t
	}
	return t
}

// deliverLocked assigns the next sequence number and fans the event out.
// Subscribers whose buffers are full are dropped so execution never blocks
// on a stalled consumer.
func (b *Bus) deliverLocked(runID string, t *topic, kind string, payload json.RawMessage) {
	t.seq++
	ev := model.Event{
		RunID:   runID,
		Seq:     t.seq,
		Kind:    kind,
		Payload: payload,
		At:      time.Now().UTC(),
	}
	eventsPublishedTotal.WithLabelValues(kind).Inc()

	var dropped []*Subscription
	for _, sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(t.subs, sub.id)
		sub.setErr(ErrSubscriberOverflow)
		close(sub.ch)
		subscribersDroppedTotal.Inc()
	}
}

func snapshotEvent(runID string, t *topic) model.Event {
	return model.Event{
		RunID:   runID,
		Seq:     t.seq,
		Kind:    model.EventStatus,
		Payload: model.SnapshotPayload(t.lastStatus),
		At:      time.Now().UTC(),
	}
}
