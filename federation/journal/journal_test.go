package journal

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/channel"
	"github.com/BaSui01/agentfed/federation/policy"
	"github.com/BaSui01/agentfed/federation/signing"
	"github.com/BaSui01/agentfed/federation/store"
	"github.com/BaSui01/agentfed/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

type journalFixture struct {
	store   *store.Store
	keyring *signing.Keyring
	journal *Journal
	rec     *countingRecorder
}

type countingRecorder struct {
	entries  []string
	verified []string
}

func (r *countingRecorder) RecordJournalEntry(direction, result string) {
	r.entries = append(r.entries, direction+":"+result)
}

func (r *countingRecorder) RecordSignatureVerification(status string) {
	r.verified = append(r.verified, status)
}

func newJournalFixture(t *testing.T, cipherName string) *journalFixture {
	t.Helper()
	ctx := context.Background()

	st := store.New(testutil.NewSQLitePool(t), zap.NewNop())
	vault, err := channel.NewVault(testMasterKey)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.CreateAgreement(ctx, &federation.Agreement{
		ID: "agr-1", InitiatorOrgID: "org-a", ResponderOrgID: "org-b",
		Status: federation.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))
	_, sealed, err := vault.MintChannelKey()
	require.NoError(t, err)
	require.NoError(t, st.ActivateAgreement(ctx, store.Activation{
		AgreementID: "agr-1",
		From:        federation.StatusPending,
		Governance:  federation.Governance{DataClassification: federation.ClassificationInternal, BlockExcessLevels: 2},
		ChannelKey:  &store.ChannelKeyRecord{Cipher: cipherName, SealedKey: sealed},
	}))

	c, err := channel.NewCipher(cipherName)
	require.NoError(t, err)
	keyring := signing.NewKeyring(st, vault, zap.NewNop())
	rec := &countingRecorder{}
	j := New(st, channel.NewKeyStore(st, vault, zap.NewNop()), keyring, st, zap.NewNop(),
		WithCipher(c), WithRecorder(rec))

	return &journalFixture{store: st, keyring: keyring, journal: j, rec: rec}
}

func entry(request, response string, result federation.PolicyResult, cost float64, latency int64) Entry {
	return Entry{
		AgreementID:     "agr-1",
		ConversationID:  "conv-1",
		SourceOrgID:     "org-a",
		TargetOrgID:     "org-b",
		TargetAgentSlug: "agent-x",
		Content:         Exchange{Request: request, Response: response},
		Decision:        policy.Decision{Result: result},
		LatencyMs:       latency,
		InputTokens:     testutil.Ptr(3),
		OutputTokens:    testutil.Ptr(5),
		CostUSD:         testutil.Ptr(cost),
	}
}

func TestJournal_RecordAndInspect(t *testing.T) {
	for _, cipherName := range []string{channel.AlgorithmAESGCM, channel.AlgorithmXChaCha} {
		t.Run(cipherName, func(t *testing.T) {
			f := newJournalFixture(t, cipherName)
			ctx := context.Background()

			msg, err := f.journal.Record(ctx, entry("hello", "hi from b", federation.PolicyApproved, 0.25, 40))
			require.NoError(t, err)
			assert.Equal(t, federation.DirectionOutbound, msg.Direction)
			assert.Equal(t, "text/plain", msg.ContentType)
			assert.NotContains(t, msg.EncryptedContent, "hello")
			require.NotNil(t, msg.SenderKeyVersion)
			assert.Equal(t, 1, *msg.SenderKeyVersion)

			_, err = f.journal.Record(ctx, entry("again", "", federation.PolicyFiltered, 0.5, 60))
			require.NoError(t, err)

			conv, err := f.journal.Conversation(ctx, "agr-1", "conv-1")
			require.NoError(t, err)
			require.Len(t, conv.Messages, 2)
			require.NotNil(t, conv.Messages[0].Content)
			assert.Equal(t, "hello", conv.Messages[0].Content.Request)
			assert.Equal(t, "hi from b", conv.Messages[0].Content.Response)
			assert.True(t, conv.Messages[0].SignatureVerified)

			s := conv.Summary
			assert.Equal(t, 2, s.MessageCount)
			assert.InDelta(t, 0.75, s.TotalCostUSD, 1e-9)
			assert.Equal(t, int64(100), s.DurationMs)
			assert.Equal(t, PolicyBreakdown{Approved: 1, Filtered: 1}, s.PolicyBreakdown)
			assert.True(t, s.AllSignaturesVerified)

			assert.Equal(t, []string{"OUTBOUND:approved", "OUTBOUND:filtered"}, f.rec.entries)
		})
	}
}

func TestJournal_CancelledContextWritesNothing(t *testing.T) {
	f := newJournalFixture(t, channel.AlgorithmAESGCM)

	_, err := f.journal.Record(testutil.CancelledContext(), entry("hello", "hi", federation.PolicyApproved, 0, 1))
	assert.ErrorIs(t, err, context.Canceled)

	n, err := f.store.CountMessages(context.Background(), "agr-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJournal_PartialFailureTolerance(t *testing.T) {
	f := newJournalFixture(t, channel.AlgorithmAESGCM)
	ctx := context.Background()

	_, err := f.journal.Record(ctx, entry("good", "ok", federation.PolicyApproved, 0, 1))
	require.NoError(t, err)

	// 被篡改的密文
	require.NoError(t, f.store.AppendMessage(ctx, &federation.Message{
		AgreementID: "agr-1", ConversationID: "conv-1", Direction: federation.DirectionOutbound,
		SourceOrgID: "org-a", TargetOrgID: "org-b", EncryptedContent: "not-a-payload",
		ContentType: "text/plain", SenderSignature: "c2ln", SenderKeyVersion: testutil.Ptr(1),
		PolicyResult: federation.PolicyApproved, CreatedAt: time.Now().UTC().Add(time.Second),
	}))

	conv, err := f.journal.Conversation(ctx, "agr-1", "conv-1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.NotNil(t, conv.Messages[0].Content)
	assert.True(t, conv.Messages[0].SignatureVerified)
	assert.Nil(t, conv.Messages[1].Content)
	assert.False(t, conv.Messages[1].SignatureVerified)
	assert.False(t, conv.Summary.AllSignaturesVerified)
}

func TestJournal_HistoricalKeyVersions(t *testing.T) {
	f := newJournalFixture(t, channel.AlgorithmAESGCM)
	ctx := context.Background()

	_, err := f.journal.Record(ctx, entry("before rotation", "", federation.PolicyApproved, 0, 1))
	require.NoError(t, err)
	_, err = f.keyring.Rotate(ctx, "org-a")
	require.NoError(t, err)
	msg, err := f.journal.Record(ctx, entry("after rotation", "", federation.PolicyApproved, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, *msg.SenderKeyVersion)

	conv, err := f.journal.Conversation(ctx, "agr-1", "conv-1")
	require.NoError(t, err)
	for _, m := range conv.Messages {
		assert.True(t, m.SignatureVerified, m.ID)
	}
	assert.True(t, conv.Summary.AllSignaturesVerified)
}

func TestJournal_UnknownKeyVersionIsUnverifiable(t *testing.T) {
	f := newJournalFixture(t, channel.AlgorithmAESGCM)
	ctx := context.Background()

	msg, err := f.journal.Record(ctx, entry("hello", "", federation.PolicyApproved, 0, 1))
	require.NoError(t, err)

	require.NoError(t, f.store.AppendMessage(ctx, &federation.Message{
		AgreementID: "agr-1", ConversationID: "conv-1", Direction: federation.DirectionOutbound,
		SourceOrgID: "org-a", TargetOrgID: "org-b", EncryptedContent: msg.EncryptedContent,
		ContentType: "text/plain", SenderSignature: msg.SenderSignature, SenderKeyVersion: testutil.Ptr(9),
		PolicyResult: federation.PolicyApproved, CreatedAt: time.Now().UTC().Add(time.Second),
	}))

	conv, err := f.journal.Conversation(ctx, "agr-1", "conv-1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, signing.StatusVerified, conv.Messages[0].SignatureStatus)
	assert.Equal(t, signing.StatusUnverifiable, conv.Messages[1].SignatureStatus)
	assert.NotNil(t, conv.Messages[1].Content)
}

func TestJournal_EmptyConversation(t *testing.T) {
	f := newJournalFixture(t, channel.AlgorithmAESGCM)

	conv, err := f.journal.Conversation(context.Background(), "agr-1", "none")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, 0, conv.Summary.MessageCount)
	assert.True(t, conv.Summary.AllSignaturesVerified)
}
