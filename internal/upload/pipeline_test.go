package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	clock  *fakeClock
	sleeps []time.Duration
	events []Progress
	calls  []int
}

func newHarness() *harness {
	return &harness{clock: &fakeClock{t: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)}}
}

func (h *harness) sleep(_ context.Context, d time.Duration) error {
	h.sleeps = append(h.sleeps, d)
	h.clock.advance(d)
	return nil
}

func (h *harness) progress(p Progress) { h.events = append(h.events, p) }

// gate fails every attempt of the listed chunk offsets and advances the clock
// by a second per call.
func (h *harness) gate(failOffsets ...int) GateFunc[int] {
	fail := map[int]bool{}
	for _, o := range failOffsets {
		fail[o] = true
	}
	return func(_ context.Context, records []int) (int, error) {
		h.clock.advance(time.Second)
		h.calls = append(h.calls, records[0])
		if fail[records[0]] {
			return 0, errors.New("gateway timeout")
		}
		return len(records), nil
	}
}

func (h *harness) pipeline(g Gate[int], cfg Config) *Pipeline[int] {
	return New[int](g, cfg, nil).WithClock(h.clock.now).WithSleep(h.sleep)
}

func records(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

func TestSplit(t *testing.T) {
	chunks := Split(records(60), 25)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{25, 25, 10}, []int{chunks[0].Size(), chunks[1].Size(), chunks[2].Size()})
	require.Equal(t, 50, chunks[2].Offset)
	require.Equal(t, 3, chunks[2].Index)
	require.Equal(t, StatePending, chunks[0].State)
	require.Empty(t, Split(records(0), 25))
}

func TestRunSecondChunkFailsPermanently(t *testing.T) {
	h := newHarness()
	inv := &countingInvalidator{}
	p := h.pipeline(h.gate(25), DefaultConfig()).WithInvalidator(inv)

	res := p.Run(context.Background(), records(60), h.progress)

	require.True(t, res.OK)
	require.Equal(t, 60, res.TotalRecords)
	require.Equal(t, 35, res.Succeeded)
	require.Len(t, res.FailedChunks, 1)
	require.Equal(t, 2, res.FailedChunks[0].Index)
	require.Equal(t, 25, res.FailedChunks[0].Size)
	require.Equal(t, 4, res.FailedChunks[0].Attempts)
	require.Equal(t, 25, res.FailedRecords())
	require.Equal(t, 1, inv.bumps)

	// chunk 1 once, chunk 2 four times, chunk 3 once
	require.Equal(t, []int{0, 25, 25, 25, 25, 50}, h.calls)
	// inter-chunk delay only after the successful first chunk, three retry delays
	require.Equal(t, []time.Duration{100 * time.Millisecond, time.Second, time.Second, time.Second}, h.sleeps)
}

func TestRunFiftySucceedWhenMiddleChunkOfThreeFullChunksFails(t *testing.T) {
	h := newHarness()
	res := h.pipeline(h.gate(25), DefaultConfig()).Run(context.Background(), records(75), nil)
	require.True(t, res.OK)
	require.Equal(t, 50, res.Succeeded)
	require.Len(t, res.FailedChunks, 1)
	require.Equal(t, 25, res.FailedChunks[0].Size)
}

func TestRunRecoversAfterRetry(t *testing.T) {
	h := newHarness()
	attempts := 0
	gate := GateFunc[int](func(_ context.Context, rs []int) (int, error) {
		attempts++
		h.clock.advance(time.Second)
		if attempts < 3 {
			return 0, errors.New("busy")
		}
		return len(rs), nil
	})
	res := h.pipeline(gate, DefaultConfig()).Run(context.Background(), records(10), h.progress)

	require.True(t, res.OK)
	require.Equal(t, 10, res.Succeeded)
	require.Empty(t, res.FailedChunks)

	var stages []Stage
	for _, ev := range h.events {
		stages = append(stages, ev.Stage)
	}
	require.Equal(t, []Stage{
		StageStarted,
		StageChunkAttempt, StageRetry,
		StageChunkAttempt, StageRetry,
		StageChunkAttempt,
		StageChunkDone,
		StageCompleted,
	}, stages)
	require.Equal(t, 2, h.events[2].Attempt)
	require.EqualError(t, h.events[2].Err, "busy")
	require.Equal(t, StateSucceeded, h.events[6].State)
}

func TestRunProgressFigures(t *testing.T) {
	h := newHarness()
	cfg := Config{ChunkSize: 10, MaxRetries: 0}
	h.pipeline(h.gate(10), cfg).Run(context.Background(), records(40), h.progress)

	var done []Progress
	for _, ev := range h.events {
		if ev.Stage == StageChunkDone {
			done = append(done, ev)
		}
	}
	require.Len(t, done, 4)

	first := done[0]
	require.Equal(t, 10, first.Processed)
	require.Equal(t, 25.0, first.Percent)
	require.Equal(t, time.Second, first.Elapsed)
	require.Equal(t, 3*time.Second, first.Remaining)
	require.Equal(t, 10.0, first.Throughput)

	second := done[1]
	require.Equal(t, StateFailed, second.State)
	require.Len(t, second.FailedChunks, 1)
	require.Equal(t, 10, second.Succeeded)

	last := h.events[len(h.events)-1]
	require.Equal(t, StageCompleted, last.Stage)
	require.Equal(t, 100.0, last.Percent)
	require.Zero(t, last.Remaining)
	require.Equal(t, 30, last.Succeeded)
}

func TestRunAllChunksFail(t *testing.T) {
	h := newHarness()
	inv := &countingInvalidator{}
	res := h.pipeline(h.gate(0, 25), DefaultConfig()).WithInvalidator(inv).Run(context.Background(), records(30), nil)

	require.False(t, res.OK)
	require.Zero(t, res.Succeeded)
	require.Len(t, res.FailedChunks, 2)
	require.Zero(t, inv.bumps)
	// No inter-chunk delay after a failed chunk.
	require.NotContains(t, h.sleeps, 100*time.Millisecond)
}

func TestRunCancelledMarksRemainingChunksFailed(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	gate := GateFunc[int](func(_ context.Context, rs []int) (int, error) {
		cancel()
		return len(rs), nil
	})
	p := New[int](gate, Config{ChunkSize: 5}, nil).WithClock(h.clock.now)
	res := p.Run(ctx, records(15), nil)

	require.True(t, res.OK)
	require.Equal(t, 5, res.Succeeded)
	require.Len(t, res.FailedChunks, 2)
	require.ErrorIs(t, res.FailedChunks[0].Err, context.Canceled)
}

func TestThroughputUsesSucceededRecords(t *testing.T) {
	h := newHarness()
	res := h.pipeline(h.gate(), Config{ChunkSize: 20}).Run(context.Background(), records(40), nil)
	require.Equal(t, 2*time.Second, res.Elapsed)
	require.Equal(t, int64(2000), res.ElapsedMs)
	require.Equal(t, 20.0, res.Throughput)
}

func TestChunkErrorMessage(t *testing.T) {
	err := &ChunkError{Index: 2, Offset: 25, Size: 25, Attempts: 4, Err: errors.New("boom")}
	require.EqualError(t, err, "upload: chunk 2 (records 26-50) failed after 4 attempt(s): boom")
	require.ErrorIs(t, err, err.Err)
}
