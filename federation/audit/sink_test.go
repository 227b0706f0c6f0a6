package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEntry() Entry {
	return Entry{
		Action:     ActionAgreementSuspended,
		EntityType: EntityAgreement,
		EntityID:   "agr-1",
		ActorOrgID: "org-a",
		ActorID:    "user-1",
		Before:     map[string]string{"status": "ACTIVE"},
		After:      map[string]string{"status": "SUSPENDED", "reason": "billing dispute"},
		At:         time.Date(2026, 2, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
	}
}

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord(sampleEntry())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, `{"status":"ACTIVE"}`, rec.BeforeState)
	assert.JSONEq(t, `{"status":"SUSPENDED","reason":"billing dispute"}`, rec.AfterState)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())

	e := sampleEntry()
	e.Before = nil
	e.At = time.Time{}
	rec, err = NewRecord(e)
	require.NoError(t, err)
	assert.Empty(t, rec.BeforeState)
	assert.False(t, rec.CreatedAt.IsZero())

	e.After = make(chan int)
	_, err = NewRecord(e)
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Record(context.Background(), sampleEntry()))
	require.Equal(t, 1, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, ActionAgreementSuspended, fields["action"])
	assert.Equal(t, "agr-1", fields["entity_id"])
	assert.Equal(t, "user-1", fields["actor_id"])
}

type memWriter struct {
	records []Record
	err     error
}

func (m *memWriter) AppendAuditRecord(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func TestDatabaseSink(t *testing.T) {
	w := &memWriter{}
	require.NoError(t, NewDatabaseSink(w).Record(context.Background(), sampleEntry()))
	require.Len(t, w.records, 1)
	assert.Equal(t, "agr-1", w.records[0].EntityID)

	w.err = errors.New("disk full")
	assert.Error(t, NewDatabaseSink(w).Record(context.Background(), sampleEntry()))
}

type fakeCollection struct {
	docs []any
	err  error
}

func (f *fakeCollection) InsertOne(_ context.Context, doc any, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{}, nil
}

func TestMongoSink_Record(t *testing.T) {
	coll := &fakeCollection{}
	sink := &MongoSink{coll: coll, logger: zap.NewNop()}

	require.NoError(t, sink.Record(context.Background(), sampleEntry()))
	require.Len(t, coll.docs, 1)
	rec, ok := coll.docs[0].(Record)
	require.True(t, ok)
	assert.Equal(t, ActionAgreementSuspended, rec.Action)

	coll.err = errors.New("not primary")
	assert.Error(t, sink.Record(context.Background(), sampleEntry()))
	assert.NoError(t, sink.Close(context.Background()))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Record(context.Background(), sampleEntry()))
}
