package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/members"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishKeysByExternalID(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "member-events", zap.NewNop())

	err := p.Publish(context.Background(),
		members.Event{Type: members.EventMemberLoaded, ExternalID: "99", Name: "Mark Adler"},
		members.Event{Type: members.EventMemberMerged, ExternalID: "20", SourceExternalIDs: []string{"10"}},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "99", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, members.EventMemberLoaded, string(w.msgs[0].Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, "member.merged", decoded["event_type"])
	assert.Equal(t, "20", decoded["external_id"])
	assert.Equal(t, []any{"10"}, decoded["source_external_ids"])
	assert.NotEmpty(t, decoded["occurred_at"])
}

func TestPublishReturnsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	p := newProducer(&fakeWriter{err: boom}, "member-events", zap.NewNop())

	err := p.Publish(context.Background(), members.Event{Type: members.EventMemberLoaded, ExternalID: "1"})
	assert.ErrorIs(t, err, boom)
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	pub := New(Config{Topic: "member-events"}, zap.NewNop())
	_, ok := pub.(Nop)
	assert.True(t, ok)
	assert.NoError(t, pub.Publish(context.Background(), members.Event{Type: members.EventMemberLoaded}))
}
