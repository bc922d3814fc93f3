package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdokita/askdokita/server/ai"
	gwerrors "github.com/askdokita/askdokita/internal/errors"
)

func TestEncodeDecodeHistory_RoundTrip(t *testing.T) {
	history := []ai.Turn{
		{Role: ai.RoleUser, Text: "What causes malaria?"},
		{Role: ai.RoleModel, Text: "Malaria is caused by Plasmodium parasites."},
		{Role: ai.RoleUser, Text: "How is it treated?"},
	}

	data, err := encodeHistory(history)
	require.NoError(t, err)

	decoded, err := decodeHistory(data)
	require.NoError(t, err)
	assert.Equal(t, history, decoded)
}

func TestEncodeHistory_StoredShape(t *testing.T) {
	// The stored record layout must stay compatible with sessions written
	// by the previous deployment: a list of {role, parts: [{text}]}.
	data, err := encodeHistory([]ai.Turn{{Role: ai.RoleUser, Text: "hello"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"role":"user","parts":[{"text":"hello"}]}]`, string(data))
}

func TestDecodeHistory_EmptyList(t *testing.T) {
	history, err := decodeHistory([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDecodeHistory_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"NotJSON", `{{{`},
		{"NotAList", `{"role":"user"}`},
		{"MissingRole", `[{"parts":[{"text":"hi"}]}]`},
		{"MissingParts", `[{"role":"user"}]`},
		{"EmptyParts", `[{"role":"user","parts":[]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeHistory([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeMalformedHistory))
		})
	}
}

func TestMemorySessionStore_SaveAndLoad(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	history := []ai.Turn{
		{Role: ai.RoleUser, Text: "hi"},
		{Role: ai.RoleModel, Text: "hello"},
	}
	require.NoError(t, s.Save(ctx, "session-1", history))

	loaded, err := s.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, history, loaded)
}

func TestMemorySessionStore_MissingSessionIsEmpty(t *testing.T) {
	s := NewMemorySessionStore()

	loaded, err := s.Load(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "session-1", []ai.Turn{{Role: ai.RoleUser, Text: "hi"}}))

	// Just before the TTL the history is still there.
	s.now = func() time.Time { return now.Add(SessionTTL - time.Second) }
	loaded, err := s.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	// Past the TTL it reads as empty.
	s.now = func() time.Time { return now.Add(SessionTTL + time.Second) }
	loaded, err = s.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMemorySessionStore_SaveResetsExpiry(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Save(ctx, "session-1", []ai.Turn{{Role: ai.RoleUser, Text: "first"}}))

	// A later save replaces the TTL rather than extending the original one.
	s.now = func() time.Time { return now.Add(30 * time.Minute) }
	require.NoError(t, s.Save(ctx, "session-1", []ai.Turn{
		{Role: ai.RoleUser, Text: "first"},
		{Role: ai.RoleModel, Text: "reply"},
	}))

	s.now = func() time.Time { return now.Add(SessionTTL + 29*time.Minute) }
	loaded, err := s.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestMemorySessionStore_LoadCopiesHistory(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "session-1", []ai.Turn{{Role: ai.RoleUser, Text: "hi"}}))

	loaded, _ := s.Load(ctx, "session-1")
	loaded[0].Text = "mutated"

	again, _ := s.Load(ctx, "session-1")
	assert.Equal(t, "hi", again[0].Text)
}

func TestSessionKey_Prefix(t *testing.T) {
	assert.Equal(t, "chat:abc123", sessionKey("abc123"))
}
