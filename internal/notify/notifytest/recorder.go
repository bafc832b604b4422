// Package notifytest provides a recording notify.Channel for tests.
package notifytest

import (
	"context"
	"errors"
	"sync"

	"github.com/ThomasGodWeb/WorkBot/internal/notify"
)

var ErrUnreachable = errors.New("notifytest: recipient unreachable")

type Sent struct {
	Recipient int64
	Envelope  notify.Envelope
}

// Recorder captures every delivery. Recipients marked with Fail are rejected.
type Recorder struct {
	mu     sync.Mutex
	sent   []Sent
	failed map[int64]bool
	events []notify.Event
}

func NewRecorder() *Recorder {
	return &Recorder{failed: make(map[int64]bool)}
}

func (r *Recorder) Fail(recipients ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range recipients {
		r.failed[id] = true
	}
}

func (r *Recorder) Deliver(ctx context.Context, recipient int64, env notify.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed[recipient] {
		return ErrUnreachable
	}
	r.sent = append(r.sent, Sent{Recipient: recipient, Envelope: env})
	return nil
}

func (r *Recorder) Publish(ctx context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) To(recipient int64) []notify.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Envelope, 0)
	for _, s := range r.sent {
		if s.Recipient == recipient {
			out = append(out, s.Envelope)
		}
	}
	return out
}

// Messages counts headed content deliveries to recipient, ignoring notices.
func (r *Recorder) Messages(recipient int64) int {
	n := 0
	for _, env := range r.To(recipient) {
		if !env.IsNotice() {
			n++
		}
	}
	return n
}

func (r *Recorder) Notices(recipient int64, kind notify.NoticeKind) int {
	n := 0
	for _, env := range r.To(recipient) {
		if env.Notice == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.events = nil
}
