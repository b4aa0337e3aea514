package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/piiscan/internal/sanitize"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := NewBoltStore(filepath.Join(t.TempDir(), "piiscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"bolt":   bs,
	}
}

func TestStore_RunLogs(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var ids []string
			for i := 0; i < 5; i++ {
				l, err := s.CreateRunLog(ctx, RunLog{
					SanitizedInput: fmt.Sprintf("input %d", i),
					PIIDetected:    []string{"Email"},
					ProcessingTime: int64(i),
					Analysis:       json.RawMessage(`{"email":{"matches":1}}`),
				})
				require.NoError(t, err)
				assert.NotEmpty(t, l.ID)
				assert.False(t, l.Timestamp.IsZero())
				assert.Equal(t, "success", l.Status)
				ids = append(ids, l.ID)
			}

			logs, err := s.RunLogs(ctx, 3)
			require.NoError(t, err)
			require.Len(t, logs, 3)
			assert.Equal(t, ids[4], logs[0].ID)
			assert.Equal(t, ids[3], logs[1].ID)
			assert.Equal(t, ids[2], logs[2].ID)

			all, err := s.RunLogs(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 5)

			got, err := s.RunLog(ctx, ids[1])
			require.NoError(t, err)
			assert.Equal(t, "input 1", got.SanitizedInput)
			assert.Equal(t, []string{"Email"}, got.PIIDetected)
			assert.JSONEq(t, `{"email":{"matches":1}}`, string(got.Analysis))

			_, err = s.RunLog(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RunLogUpsertKeepsOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.CreateRunLog(ctx, RunLog{SanitizedInput: "a"})
			require.NoError(t, err)
			_, err = s.CreateRunLog(ctx, RunLog{SanitizedInput: "b"})
			require.NoError(t, err)

			first.AgentResponse = "done"
			_, err = s.CreateRunLog(ctx, first)
			require.NoError(t, err)

			logs, err := s.RunLogs(ctx, 10)
			require.NoError(t, err)
			require.Len(t, logs, 2)
			assert.Equal(t, "b", logs[0].SanitizedInput)
			assert.Equal(t, "done", logs[1].AgentResponse)
		})
	}
}

func TestStore_EmptyLogs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			logs, err := s.RunLogs(context.Background(), 10)
			require.NoError(t, err)
			assert.NotNil(t, logs)
			assert.Empty(t, logs)
		})
	}
}

func TestStore_RecordRun(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, st.QueriesProcessed)

			_, err = s.RecordRun(ctx, 2, 10*time.Millisecond)
			require.NoError(t, err)
			_, err = s.RecordRun(ctx, 0, 15*time.Millisecond)
			require.NoError(t, err)
			st, err = s.RecordRun(ctx, 1, 20*time.Millisecond)
			require.NoError(t, err)

			assert.EqualValues(t, 3, st.QueriesProcessed)
			assert.EqualValues(t, 3, st.PIIRedacted)
			// round((10+15)/2)=13, round((13*2+20)/3)=15
			assert.EqualValues(t, 15, st.AvgProcessingTime)

			again, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, st.QueriesProcessed, again.QueriesProcessed)
			assert.Equal(t, st.AvgProcessingTime, again.AvgProcessingTime)
		})
	}
}

func TestStore_Settings(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p, err := s.Settings(ctx)
			require.NoError(t, err)
			assert.Equal(t, DefaultPIISettings(), p)

			p, err = p.Patch([]byte(`{"detectEmails":false,"mlConfidenceThreshold":60}`))
			require.NoError(t, err)
			saved, err := s.SaveSettings(ctx, p)
			require.NoError(t, err)
			assert.False(t, saved.UpdatedAt.IsZero())

			got, err := s.Settings(ctx)
			require.NoError(t, err)
			assert.False(t, got.Detection.Enabled(sanitize.CategoryEmail))
			assert.True(t, got.Detection.Enabled(sanitize.CategoryPhone))
			assert.Equal(t, 60, got.ConfidenceThreshold)
			assert.True(t, got.ExternalExtractors)
		})
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, "")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, s)

	s, err = NewStore(ctx, "bolt://"+filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, "mysql://localhost")
	assert.Error(t, err)
}

func TestStats_Next(t *testing.T) {
	now := time.Unix(100, 0)
	st := Stats{}.next(1, 7, now)
	assert.Equal(t, Stats{QueriesProcessed: 1, PIIRedacted: 1, AvgProcessingTime: 7, UpdatedAt: now}, st)

	st = st.next(0, 8, now)
	assert.EqualValues(t, 8, st.AvgProcessingTime) // round(7.5)
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash("hello"))
	assert.NotEqual(t, a, ContentHash("hello!"))
}

func TestReceiptPayload(t *testing.T) {
	l := RunLog{
		ID:         "abc",
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		InputHash:  "in",
		OutputHash: "out",
		Status:     "success",
		RawInput:   "not covered",
	}
	assert.JSONEq(t,
		`{"id":"abc","timestamp":"2024-01-02T03:04:05Z","inputHash":"in","outputHash":"out",`+
			`"responseHash":"`+ContentHash("")+`","piiDetected":[],"confidenceScores":{},"status":"success"}`,
		string(l.ReceiptPayload()))

	// Raw text is covered through the hashes and CheckContent, not directly.
	base := string(l.ReceiptPayload())
	l.RawInput = "changed"
	assert.Equal(t, base, string(l.ReceiptPayload()))

	tests := []struct {
		name   string
		mutate func(l *RunLog)
	}{
		{"agent response", func(l *RunLog) { l.AgentResponse = "edited" }},
		{"confidence scores", func(l *RunLog) { l.ConfidenceScores = map[string]float64{"Email": 0.5} }},
		{"detected", func(l *RunLog) { l.PIIDetected = []string{"Email"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := l
			tt.mutate(&c)
			assert.NotEqual(t, base, string(c.ReceiptPayload()))
		})
	}
}

func TestCheckContent(t *testing.T) {
	l := RunLog{
		RawInput:       "mail a@b.co",
		SanitizedInput: "mail ██████",
		InputHash:      ContentHash("mail a@b.co"),
		OutputHash:     ContentHash("mail ██████"),
	}
	require.NoError(t, l.CheckContent())

	edited := l
	edited.SanitizedInput = "mail a@b.co"
	assert.ErrorIs(t, edited.CheckContent(), ErrContentMismatch)

	edited = l
	edited.RawInput = "mail c@d.co"
	assert.ErrorIs(t, edited.CheckContent(), ErrContentMismatch)

	// Raw input that was never stored is not checked.
	edited = l
	edited.RawInput = ""
	assert.NoError(t, edited.CheckContent())
}
