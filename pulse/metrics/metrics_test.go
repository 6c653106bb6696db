package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })
	return mr, raw
}

func sampleSnapshot() Snapshot {
	finish := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Timestamp:     time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		SessionID:     "session_20260302_080000",
		State:         "SLEEPING",
		JobsTotal:     933,
		JobsProcessed: 120,
		JobsFailed:    3,
		JobsPending:   810,
		SpentTodayUSD: 2.5,
		DailyLimitUSD: 5,
		SpentTotalUSD: 44,
		TotalLimitUSD: 150,
		JobsPerHour:   0.66,
		SuccessRate:   0.97,
		ETADays:       51,
		ProjectedAt:   &finish,
	}
}

func TestRedisSink_StoresHashAndPublishes(t *testing.T) {
	// Given a redis sink and a subscriber on its channel
	mr, raw := setupMiniredis(t)
	sink, err := NewRedisSink(am.MetricsConfig{
		Sink:     "redis",
		RedisURL: "redis://" + mr.Addr(),
		Key:      "nkosched:metrics",
		Channel:  "nkosched:metrics:updates",
	})
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	sub := raw.Subscribe(ctx, "nkosched:metrics:updates")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	// When a snapshot is pushed
	require.NoError(t, sink.Push(ctx, sampleSnapshot()))

	// Then the hash holds the latest values
	assert.Equal(t, "SLEEPING", mr.HGet("nkosched:metrics", "state"))
	assert.Equal(t, "120", mr.HGet("nkosched:metrics", "jobs_processed"))
	assert.Equal(t, "2026-05-01T00:00:00Z", mr.HGet("nkosched:metrics", "projected_finish"))

	// And the JSON snapshot is published
	select {
	case msg := <-sub.Channel():
		var got Snapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, 810, got.JobsPending)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestRedisSink_UnreachableIsTransient(t *testing.T) {
	mr, _ := setupMiniredis(t)
	sink, err := NewRedisSink(am.MetricsConfig{RedisURL: "redis://" + mr.Addr(), Key: "k"})
	require.NoError(t, err)
	defer sink.Close()
	mr.Close()

	err = sink.Push(context.Background(), sampleSnapshot())
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
}

func TestNewSink_Kinds(t *testing.T) {
	s, err := NewSink(am.MetricsConfig{Sink: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewSink(am.MetricsConfig{Sink: "log"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, s)
	assert.NoError(t, s.Push(context.Background(), sampleSnapshot()))

	_, err = NewSink(am.MetricsConfig{Sink: "redis", RedisURL: "not a url"}, nil)
	assert.Error(t, err)

	_, err = NewSink(am.MetricsConfig{Sink: "statsd"}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

// recordingSink collects pushed snapshots
type recordingSink struct {
	mu     sync.Mutex
	pushed []Snapshot
	closed bool
	err    error
}

func (r *recordingSink) Push(ctx context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, s)
	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushed)
}

func TestPusher_SchedulesAndFlushesOnStop(t *testing.T) {
	// Given a pusher firing every second
	sink := &recordingSink{}
	p, err := NewPusher("@every 1s", sink, sampleSnapshot, nil)
	require.NoError(t, err)

	// When started and left running
	p.Start()
	assert.Eventually(t, func() bool { return sink.count() >= 1 }, 3*time.Second, 50*time.Millisecond)

	// Then stopping pushes a final snapshot and closes the sink
	before := sink.count()
	p.Stop(context.Background())
	assert.GreaterOrEqual(t, sink.count(), before+1)
	assert.True(t, sink.closed)
}

func TestPusher_FailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	p, err := NewPusher("@every 5m", sink, sampleSnapshot, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { p.PushNow(context.Background()) })
	assert.Equal(t, 1, sink.count())
}

func TestNewPusher_InvalidSchedule(t *testing.T) {
	_, err := NewPusher("every so often", NopSink{}, sampleSnapshot, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestThroughput(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	tp := NewThroughput(start)

	assert.Equal(t, 1.0, tp.SuccessRate())
	assert.Zero(t, tp.JobsPerHour(start))

	tp.Observe(true)
	tp.Observe(true)
	tp.Observe(true)
	tp.Observe(false)

	assert.InDelta(t, 0.75, tp.SuccessRate(), 1e-9)
	assert.InDelta(t, 2.0, tp.JobsPerHour(start.Add(2*time.Hour)), 1e-9)
}

func TestFillHost(t *testing.T) {
	orig := memoryStats
	defer func() { memoryStats = orig }()

	memoryStats = func() (uint64, uint64, error) { return 8 << 30, 2 << 30, nil }
	var s Snapshot
	FillHost(&s)
	assert.InDelta(t, 8.0, s.MemoryTotalGB, 1e-9)
	assert.InDelta(t, 6.0, s.MemoryUsedGB, 1e-9)
	assert.InDelta(t, 75.0, s.MemoryPercent, 1e-9)

	memoryStats = func() (uint64, uint64, error) { return 0, 0, errors.New("unsupported") }
	var empty Snapshot
	FillHost(&empty)
	assert.Zero(t, empty.MemoryTotalGB)
}
