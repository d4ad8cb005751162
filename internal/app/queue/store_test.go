package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/beatdeck/internal/domain/track"
)

func tracks(ids ...string) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = track.Standalone(id, id, "artist")
	}
	return out
}

func TestStore_ReplaceIsIdempotent(t *testing.T) {
	s := NewStore()

	require.True(t, s.Replace(tracks("a", "b", "c"), 1, "pack:42"))
	gen := s.Generation()

	assert.False(t, s.Replace(tracks("a", "b", "c"), 1, "pack:42"), "same queue, key and index")
	assert.Equal(t, gen, s.Generation())

	assert.True(t, s.Replace(tracks("a", "b", "c"), 2, "pack:42"), "index changed")
	assert.True(t, s.Replace(tracks("a", "b", "c"), 2, "playlist"), "source key changed")
	assert.True(t, s.Replace(tracks("a", "c", "b"), 2, "playlist"), "order changed")
	assert.Equal(t, gen+3, s.Generation())
}

func TestStore_ReplaceClampsIndex(t *testing.T) {
	s := NewStore()

	s.Replace(tracks("a", "b"), 9, "")
	assert.Equal(t, 1, s.Cursor())

	s.Replace(tracks("a", "b", "c"), -4, "")
	assert.Equal(t, 0, s.Cursor())
}

func TestStore_AppendKeepsCursor(t *testing.T) {
	s := NewStore()
	s.Replace(tracks("a", "b"), 1, "")

	s.Append(tracks("c", "d")...)

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, track.Signature(tracks("a", "b", "c", "d")), s.Snapshot().Signature)
}

func TestStore_RemoveAt(t *testing.T) {
	tests := []struct {
		name        string
		ids         []string
		cursor      int
		remove      int
		wantCursor  int
		wantResult  RemoveResult
		wantRemoved bool
	}{
		{
			name: "before cursor decrements", ids: []string{"a", "b", "c"}, cursor: 2, remove: 0,
			wantCursor: 1, wantRemoved: true,
		},
		{
			name: "after cursor keeps cursor", ids: []string{"a", "b", "c"}, cursor: 0, remove: 2,
			wantCursor: 0, wantRemoved: true,
		},
		{
			name: "current last entry clamps", ids: []string{"a", "b", "c"}, cursor: 2, remove: 2,
			wantCursor: 1, wantResult: RemoveResult{RemovedCurrent: true}, wantRemoved: true,
		},
		{
			name: "current middle entry stays", ids: []string{"a", "b", "c"}, cursor: 1, remove: 1,
			wantCursor: 1, wantResult: RemoveResult{RemovedCurrent: true}, wantRemoved: true,
		},
		{
			name: "only entry empties", ids: []string{"a"}, cursor: 0, remove: 0,
			wantCursor: 0, wantResult: RemoveResult{RemovedCurrent: true, Emptied: true}, wantRemoved: true,
		},
		{
			name: "out of range ignored", ids: []string{"a", "b"}, cursor: 1, remove: 5,
			wantCursor: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Replace(tracks(tt.ids...), tt.cursor, "")

			res, ok := s.RemoveAt(tt.remove)

			assert.Equal(t, tt.wantRemoved, ok)
			assert.Equal(t, tt.wantResult, res)
			assert.Equal(t, tt.wantCursor, s.Cursor())
		})
	}
}

func TestStore_Toggles(t *testing.T) {
	s := NewStore()
	s.SetShuffle(true)
	s.SetRepeat(RepeatAll)

	snap := s.Snapshot()
	assert.True(t, snap.Shuffle)
	assert.Equal(t, RepeatAll, snap.Repeat)
}

func TestStore_SetAudioURL(t *testing.T) {
	s := NewStore()
	s.Replace(tracks("a", "b"), 0, "")

	s.SetAudioURL(1, "https://cdn.example/b.mp3")
	s.SetAudioURL(7, "ignored")

	b, ok := s.At(1)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/b.mp3", b.AudioURL)

	snap := s.Snapshot()
	snap.Tracks[1].AudioURL = "mutated"
	b, _ = s.At(1)
	assert.Equal(t, "https://cdn.example/b.mp3", b.AudioURL, "snapshot must not alias store")
}

func TestParseRepeatMode(t *testing.T) {
	for _, m := range []string{"off", "all", "one"} {
		got, err := ParseRepeatMode(m)
		require.NoError(t, err)
		assert.Equal(t, RepeatMode(m), got)
	}
	_, err := ParseRepeatMode("twice")
	assert.Error(t, err)
}
