package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"montreal", "montreal"},
		{" new york ", "new_york"},
		{"a.b>c*d/e", "a_b_c_d_e"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectToken(tt.in), tt.in)
	}
}

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "isochrone.completed", eventSubject("isochrone.completed", ""))
	assert.Equal(t, "isochrone.completed.sao_paulo", eventSubject("isochrone.completed", "Sao Paulo"))
}

func TestCompletedEventJSON(t *testing.T) {
	ev := CompletedEvent{
		RunID:        "r1",
		Timestamp:    time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC),
		OriginLat:    45.5,
		OriginLng:    -73.57,
		StartTime:    "09:00:00",
		DurationSecs: 1800,
		Settled:      42,
	}
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "r1", m["runId"])
	assert.Equal(t, "09:00:00", m["startTime"])
	assert.EqualValues(t, 42, m["settled"])
	assert.NotContains(t, m, "city")
}

type fakeMetrics struct {
	published, errs int
	observed        int
}

func (f *fakeMetrics) NATSRequestInc()              {}
func (f *fakeMetrics) NATSPublishedInc()            { f.published++ }
func (f *fakeMetrics) NATSPublishErrInc()           { f.errs++ }
func (f *fakeMetrics) PublishObserve(time.Duration) { f.observed++ }
func (f *fakeMetrics) NATSSetConnected(bool)        {}

func TestObserveCountsOutcomes(t *testing.T) {
	m := &fakeMetrics{}
	p := &NATSPublisher{metrics: m}
	require.NoError(t, p.observe(func() error { return nil }))
	assert.Error(t, p.observe(func() error { return errors.New("boom") }))
	assert.Equal(t, 1, m.published)
	assert.Equal(t, 1, m.errs)
	assert.Equal(t, 2, m.observed)

	// Events are off without a subject, so no connection is touched.
	assert.NoError(t, (&NATSPublisher{}).PublishCompleted(CompletedEvent{RunID: "x"}))
}

func TestHandleAppliesRequestTimeout(t *testing.T) {
	var seen context.Context
	before := time.Now()
	reply := handle(context.Background(), 50*time.Millisecond, []byte("ping"), func(ctx context.Context, data []byte) []byte {
		seen = ctx
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, before.Add(50*time.Millisecond), deadline, 40*time.Millisecond)
		return append([]byte("re:"), data...)
	})
	assert.Equal(t, "re:ping", string(reply))
	assert.ErrorIs(t, seen.Err(), context.Canceled, "released once the reply is built")

	// A blocked handler is released by the deadline.
	reply = handle(context.Background(), 20*time.Millisecond, nil, func(ctx context.Context, _ []byte) []byte {
		<-ctx.Done()
		return []byte(ctx.Err().Error())
	})
	assert.Equal(t, context.DeadlineExceeded.Error(), string(reply))

	reply = handle(context.Background(), 0, nil, func(ctx context.Context, _ []byte) []byte {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return nil
	})
	assert.Nil(t, reply)
}
