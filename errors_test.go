package unistore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorSentinelMatching(t *testing.T) {
	err := NewError(KindNotFound, "stat", "a/b.txt", "no such object")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrPermissionDenied)

	// Matching survives wrapping.
	wrapped := fmt.Errorf("outer: %w", err)
	require.ErrorIs(t, wrapped, ErrNotFound)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindRateLimited, KindOf(NewError(KindRateLimited, "write", "x", "slow down")))
	require.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
}

func TestTemporaryFlag(t *testing.T) {
	err := NewError(KindRateLimited, "read", "x", "throttled").AsTemporary()
	require.True(t, IsTemporary(err))

	persisted := MarkPersistent(err)
	require.False(t, IsTemporary(persisted))
	// Kind is preserved; only the flag changes.
	require.Equal(t, KindRateLimited, KindOf(persisted))
	// The original is untouched.
	require.True(t, IsTemporary(err))
}

func TestErrorMessage(t *testing.T) {
	err := NewError(KindNotFound, "stat", "a/b.txt", "gone").WithCause(errors.New("io fail"))
	msg := err.Error()
	require.Contains(t, msg, "stat")
	require.Contains(t, msg, "a/b.txt")
	require.Contains(t, msg, "NotFound")
	require.Contains(t, msg, "io fail")
}
