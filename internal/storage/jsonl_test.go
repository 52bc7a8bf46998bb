package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJsonlJournalAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	journal := NewJsonlJournal(path)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Append(JournalEntry{ID: "a", Operation: "swap_nfts_for_tokens", Timestamp: ts, Payload: map[string]int{"swaps": 2}}))
	require.NoError(t, journal.Append())
	require.NoError(t, journal.Append(JournalEntry{ID: "b", Operation: "create_pool", Timestamp: ts, Payload: []string{"1"}}))

	entries, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].ID)
	require.Equal(t, "swap_nfts_for_tokens", entries[0].Operation)
	require.True(t, ts.Equal(entries[0].Timestamp))
	require.JSONEq(t, `{"swaps":2}`, string(entries[0].Payload.(json.RawMessage)))
	require.Equal(t, "b", entries[1].ID)
}

func TestReadJournalMissing(t *testing.T) {
	_, err := ReadJournal(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}
