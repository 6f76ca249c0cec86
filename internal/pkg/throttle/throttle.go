// Package throttle shapes a byte stream to a configured transfer rate.
//
// A Reader wraps any io.Reader and paces delivery with a single scheduling
// cursor: each chunk of S bytes is released no earlier than the cursor, which
// then advances by S/rate. Pacing stays smooth across the whole transfer
// instead of resetting per chunk, and a chunk that arrives late pulls the
// cursor forward so the stream self-corrects.
package throttle

import (
	"context"
	"io"
	"time"
)

// maxReadSize caps a single underlying read so delivery stays progressive
// even at low rates. 64 KiB at 1 MB/s is a ~62ms pause per chunk.
const maxReadSize = 64 * 1024

// Reader is a rate-limited io.Reader. A rate of 0 or less disables shaping
// and the Reader becomes a transparent pass-through.
//
// Reader is not safe for concurrent use; every in-flight transfer gets its
// own instance with its own full rate allowance.
type Reader struct {
	src         io.Reader
	ctx         context.Context
	rate        float64 // bytes per second
	nextRelease time.Time
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// NewReader wraps src with a rate limit of rate bytes per second.
// The context cancels any pending delay; once cancelled no further
// reads of src are issued.
func NewReader(ctx context.Context, src io.Reader, rate float64) *Reader {
	return &Reader{
		src:   src,
		ctx:   ctx,
		rate:  rate,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Read implements io.Reader. Bytes already read from src are always
// returned, even when the delay is interrupted by cancellation.
func (r *Reader) Read(p []byte) (int, error) {
	if r.rate <= 0 {
		return r.src.Read(p)
	}

	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	if len(p) > maxReadSize {
		p = p[:maxReadSize]
	}

	n, err := r.src.Read(p)
	if n > 0 {
		if werr := r.delay(n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

// delay blocks until the scheduling cursor allows n more bytes through.
func (r *Reader) delay(n int) error {
	now := r.now()
	if r.nextRelease.Before(now) {
		r.nextRelease = now
	}
	release := r.nextRelease
	r.nextRelease = release.Add(time.Duration(float64(n) / r.rate * float64(time.Second)))

	wait := release.Sub(now)
	if wait <= 0 {
		return nil
	}
	return r.sleep(r.ctx, wait)
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
// The timer is stopped on cancellation so an abandoned transfer does not
// leave it pending.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
