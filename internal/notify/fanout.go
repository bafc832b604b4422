package notify

import (
	"context"
	"fmt"

	"github.com/ThomasGodWeb/WorkBot/internal/queue"

	"github.com/rs/zerolog"
)

// Delivery is everything one recipient receives, sent in order.
type Delivery struct {
	Recipient int64
	Envelopes []Envelope
}

type Result struct {
	Recipient int64
	Sent      int
	Err       error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Fanout dispatches deliveries through a worker pool. Recipients are
// independent: a failure stops only that recipient's remaining envelopes.
type Fanout struct {
	channel Channel
	pool    *queue.RequestQueueManager
	metrics *Metrics
	log     zerolog.Logger
}

func NewFanout(channel Channel, pool *queue.RequestQueueManager, metrics *Metrics, log zerolog.Logger) *Fanout {
	return &Fanout{
		channel: channel,
		pool:    pool,
		metrics: metrics,
		log:     log,
	}
}

// Send blocks until every delivery finished and returns one result per
// delivery, in input order. Failures are logged here and never returned as an error.
func (f *Fanout) Send(ctx context.Context, deliveries []Delivery) []Result {
	results := make([]Result, len(deliveries))
	waits := make([]chan error, len(deliveries))

	for i, d := range deliveries {
		i, d := i, d
		results[i].Recipient = d.Recipient
		errc := make(chan error, 1)
		job := queue.Job{
			Fn: func() error {
				sent, err := f.deliver(ctx, d)
				results[i].Sent = sent
				return err
			},
			Errc: errc,
		}
		if err := f.pool.TryEnqueue(ctx, job); err != nil {
			results[i].Err = fmt.Errorf("enqueue delivery: %w", err)
			continue
		}
		waits[i] = errc
	}

	for i, errc := range waits {
		if errc == nil {
			continue
		}
		results[i].Err = <-errc
	}

	for _, r := range results {
		if r.Err != nil {
			f.log.Warn().Err(r.Err).Int64("recipient_id", r.Recipient).Int("sent", r.Sent).Msg("delivery failed")
		}
	}
	return results
}

func (f *Fanout) deliver(ctx context.Context, d Delivery) (int, error) {
	sent := 0
	for _, env := range d.Envelopes {
		err := f.channel.Deliver(ctx, d.Recipient, env)
		f.metrics.observe(env, err)
		if err != nil {
			return sent, fmt.Errorf("deliver %s to %d: %w", env.Label(), d.Recipient, err)
		}
		sent++
	}
	return sent, nil
}

// Failed filters the results that did not complete.
func Failed(results []Result) []Result {
	failed := make([]Result, 0)
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}
