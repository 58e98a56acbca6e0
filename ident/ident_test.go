package ident

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsPrefixedAndSortable(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	Clock = func() time.Time { return base }
	defer func() { Clock = time.Now }()

	first := New("agent")
	require.True(t, strings.HasPrefix(first, "agent_"))

	Clock = func() time.Time { return base.Add(time.Second) }
	second := New("agent")
	require.True(t, strings.Compare(first, second) < 0, "expected later id to sort after earlier id")
}

func TestSessionIDDefaultFormat(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 5, 9, 0, time.UTC)
	require.Equal(t, "session_20260730_140509", SessionID("", ts))
}
