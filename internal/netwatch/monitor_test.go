package netwatch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/keepsake/internal/logging"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

type fakeProber struct {
	err error
}

func (p *fakeProber) Ping(ctx context.Context) error { return p.err }

type fakeTarget struct {
	available  []bool
	retryCalls int
}

func (f *fakeTarget) SetNetworkAvailable(a bool) { f.available = append(f.available, a) }

func (f *fakeTarget) RetryFailedAndPending(ctx context.Context) error {
	f.retryCalls++
	return nil
}

func newMonitor(p *fakeProber, tgt *fakeTarget) *Monitor {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(p, tgt, 0, log)
}

func TestCheck_RetriesOnRestoreEdgeOnly(t *testing.T) {
	prober := &fakeProber{err: syncerr.ErrUnavailable}
	target := &fakeTarget{}
	m := newMonitor(prober, target)
	ctx := context.Background()

	// baseline: offline
	m.Check(ctx)
	assert.Zero(t, target.retryCalls)

	// still offline: no trigger
	m.Check(ctx)
	assert.Zero(t, target.retryCalls)

	// restore: exactly one trigger
	prober.err = nil
	m.Check(ctx)
	assert.Equal(t, 1, target.retryCalls)

	// still online: no second trigger
	m.Check(ctx)
	m.Check(ctx)
	assert.Equal(t, 1, target.retryCalls)

	// flap: another edge, another trigger
	prober.err = syncerr.ErrUnavailable
	m.Check(ctx)
	prober.err = nil
	m.Check(ctx)
	assert.Equal(t, 2, target.retryCalls)
}

func TestCheck_FirstObservationSetsBaselineWithoutRetry(t *testing.T) {
	prober := &fakeProber{}
	target := &fakeTarget{}
	m := newMonitor(prober, target)

	m.Check(context.Background())

	assert.Equal(t, []bool{true}, target.available)
	assert.Zero(t, target.retryCalls, "coming up online is not a restore edge")
}

func TestCheck_PushesAvailabilityToTarget(t *testing.T) {
	prober := &fakeProber{err: syncerr.ErrUnavailable}
	target := &fakeTarget{}
	m := newMonitor(prober, target)
	ctx := context.Background()

	m.Check(ctx)
	prober.err = nil
	m.Check(ctx)

	assert.Equal(t, []bool{false, true}, target.available)
}
