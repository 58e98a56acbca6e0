package retention_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/logwriter"
	"github.com/subagentctl/subagentctl/retention"
	"github.com/subagentctl/subagentctl/snapshot"
)

func TestSweeperPrunesLogsAndSnapshotsOnInterval(t *testing.T) {
	logDir := t.TempDir()
	for _, name := range []string{"a.jsonl", "b.jsonl", "c.jsonl"} {
		require.NoError(t, os.WriteFile(filepath.Join(logDir, name), []byte("{}\n"), 0o644))
	}
	writer := logwriter.New(logDir, 10, false)

	snapDir := t.TempDir()
	mgr := snapshot.New(snapDir, nil, false)
	old := time.Now().Add(-48 * time.Hour)
	_, err := mgr.Create(context.Background(), "sess1", "manual", 0, 0, nil, "", nil)
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(snapDir, "sess1_snap*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NoError(t, os.Chtimes(matches[0], old, old))

	sweeper := retention.New(writer, 1, mgr, 1, 20*time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(logDir, "*.jsonl"))
		return len(matches) == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		left, _ := mgr.List("sess1")
		return len(left) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSweeperSkipsDisabledRetention(t *testing.T) {
	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "a.jsonl"), []byte("{}\n"), 0o644))
	writer := logwriter.New(logDir, 10, false)

	sweeper := retention.New(writer, 0, nil, 0, 20*time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	time.Sleep(60 * time.Millisecond)
	matches, err := filepath.Glob(filepath.Join(logDir, "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
