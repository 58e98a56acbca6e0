package approval_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/approval"
	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/model"
)

func newStore(t *testing.T, b bus.Bus) *approval.Store {
	t.Helper()
	return approval.New(filepath.Join(t.TempDir(), "approvals.json"), b)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t, nil)
	rec := model.ApprovalRecord{ApprovalID: "appr_1", Status: model.ApprovalRequired, Tool: "bash"}
	require.NoError(t, s.Save(context.Background(), rec))

	got, ok, err := s.Load(context.Background(), "appr_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bash", got.Tool)
}

func TestListFiltersToPendingOnly(t *testing.T) {
	s := newStore(t, nil)
	require.NoError(t, s.Save(context.Background(), model.ApprovalRecord{ApprovalID: "a1", Status: model.ApprovalRequired}))
	require.NoError(t, s.Save(context.Background(), model.ApprovalRecord{ApprovalID: "a2", Status: model.ApprovalGranted}))

	pending, err := s.List(true)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := s.List(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDecideGrantPublishesDecidedAndGranted(t *testing.T) {
	b := bus.New()
	decided := make(chan bus.Event, 1)
	granted := make(chan bus.Event, 1)
	b.Subscribe(bus.EventApprovalDecided, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		decided <- e
		return nil
	}), bus.NonBlocking)
	b.Subscribe(bus.EventApprovalGranted, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		granted <- e
		return nil
	}), bus.NonBlocking)

	s := newStore(t, b)
	require.NoError(t, s.Save(context.Background(), model.ApprovalRecord{ApprovalID: "a1", Status: model.ApprovalRequired}))

	rec, err := s.Decide(context.Background(), "sess1", "a1", true)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalGranted, rec.Status)

	select {
	case <-decided:
	case <-time.After(time.Second):
		t.Fatal("expected approval.decided event")
	}
	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("expected approval.granted event")
	}
}

func TestDecideDenyPublishesDenied(t *testing.T) {
	b := bus.New()
	denied := make(chan bus.Event, 1)
	b.Subscribe(bus.EventApprovalDenied, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		denied <- e
		return nil
	}), bus.NonBlocking)

	s := newStore(t, b)
	require.NoError(t, s.Save(context.Background(), model.ApprovalRecord{ApprovalID: "a1", Status: model.ApprovalRequired}))

	rec, err := s.Decide(context.Background(), "sess1", "a1", false)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalDenied, rec.Status)

	select {
	case <-denied:
	case <-time.After(time.Second):
		t.Fatal("expected approval.denied event")
	}
}
