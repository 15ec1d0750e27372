// Package pipeline buffers the continuous vehicle event stream into
// fixed-duration batches. Windowing is decoupled from committing: the batch
// channel buffers completed windows so a slow commit never drops or merges
// events from subsequent windows.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
)

// Batcher groups arriving vehicle events into per-window batches,
// preserving arrival order within each batch. Windows with zero events
// produce no output.
type Batcher struct {
	window time.Duration
	input  chan *v1.VehicleEvent
	output chan []*v1.VehicleEvent
}

// NewBatcher creates a batcher with the given window length and channel
// bounds. batchBufferSize must be >= 1 so the next window can complete while
// the previous batch is still being committed.
func NewBatcher(window time.Duration, inputBufferSize, batchBufferSize int) *Batcher {
	return &Batcher{
		window: window,
		input:  make(chan *v1.VehicleEvent, inputBufferSize),
		output: make(chan []*v1.VehicleEvent, batchBufferSize),
	}
}

// Ingest is the broker subscription callback. It decodes the envelope payload
// and enqueues it for windowing. When the input buffer is full the event is
// dropped with a log line; a stalled commit pipeline must not grow memory
// without limit.
func (b *Batcher) Ingest(envelope *v1.EventEnvelope) {
	evt := v1.VehicleEventFromData(envelope.Data)

	select {
	case b.input <- evt:
	default:
		slog.Error("[Pipeline] Input buffer full, dropping event",
			"aid", evt.AID,
			"buffer_size", cap(b.input))
	}
}

// Batches exposes the stream of completed non-empty windows, in window order.
// The channel is closed after Run returns.
func (b *Batcher) Batches() <-chan []*v1.VehicleEvent {
	return b.output
}

// Run drives the window loop until ctx is cancelled. On shutdown the
// in-progress window is flushed downstream before the batch channel closes,
// so already-buffered events still reach the committer.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.window)
	defer ticker.Stop()
	defer close(b.output)

	slog.Info("[Pipeline] Batching started", "window", b.window)

	var buffer []*v1.VehicleEvent

	for {
		select {
		case evt := <-b.input:
			buffer = append(buffer, evt)

		case <-ticker.C:
			if len(buffer) == 0 {
				continue
			}
			batch := buffer
			buffer = nil

			// Blocking send: if every downstream slot is occupied the
			// window loop pauses here and arrivals queue in the input
			// buffer, keeping batches strictly in window order.
			select {
			case b.output <- batch:
				slog.Debug("[Pipeline] Window closed", "batch_size", len(batch))
			case <-ctx.Done():
				slog.Info("[Pipeline] Stopping mid-handoff, flushing final batch",
					"batch_size", len(batch))
				b.output <- batch
				return nil
			}

		case <-ctx.Done():
			buffer = append(buffer, drainPending(b.input)...)
			if len(buffer) > 0 {
				slog.Info("[Pipeline] Stopping, flushing final batch", "batch_size", len(buffer))
				b.output <- buffer
			} else {
				slog.Info("[Pipeline] Stopping")
			}
			return nil
		}
	}
}

// drainPending empties whatever the broker callback enqueued before shutdown.
func drainPending(input <-chan *v1.VehicleEvent) []*v1.VehicleEvent {
	var pending []*v1.VehicleEvent
	for {
		select {
		case evt := <-input:
			pending = append(pending, evt)
		default:
			return pending
		}
	}
}
