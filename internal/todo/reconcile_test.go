package todo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/tasklist/internal/store"
)

func ts(sec int) *time.Time {
	t := time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
	return &t
}

func ids(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestReconcileOrdersByCreatedAt(t *testing.T) {
	got := Reconcile([]store.Record{
		{ID: "c", CreatedAt: ts(30)},
		{ID: "b", CreatedAt: ts(10)},
		{ID: "z"},
		{ID: "a", CreatedAt: ts(10)},
		{ID: "y"},
	})
	require.Equal(t, []string{"y", "z", "a", "b", "c"}, ids(got))
}

func TestReconcileCopiesRecords(t *testing.T) {
	created := ts(5)
	records := []store.Record{{ID: "a", Text: "x", IsCompleted: true, CreatedAt: created, OwnerID: "u"}}
	got := Reconcile(records)

	require.Equal(t, "x", got[0].Text)
	require.True(t, got[0].IsCompleted)
	require.Equal(t, "u", got[0].OwnerID)
	*created = created.Add(time.Hour)
	require.True(t, got[0].CreatedAt.Equal(*ts(5)))
}

func TestReconcilerEachSnapshotReplacesList(t *testing.T) {
	st := newCaptureStore()
	r := NewReconciler(nil, nil)
	require.True(t, r.Loading())

	r.Attach(context.Background(), st, "p")
	sub := st.sub(0)
	require.Equal(t, "p", sub.path)

	sub.onSnapshot([]store.Record{{ID: "a", CreatedAt: ts(2)}, {ID: "b", CreatedAt: ts(1)}})
	require.False(t, r.Loading())
	require.Equal(t, []string{"b", "a"}, ids(r.Tasks()))

	sub.onSnapshot([]store.Record{{ID: "c", CreatedAt: ts(3)}})
	require.Equal(t, []string{"c"}, ids(r.Tasks()))
}

func TestReconcilerErrorKeepsLastList(t *testing.T) {
	st := newCaptureStore()
	r := NewReconciler(nil, nil)
	r.Attach(context.Background(), st, "p")
	sub := st.sub(0)

	sub.onSnapshot([]store.Record{{ID: "a"}})
	sub.onError(errBoom)

	require.False(t, r.Loading())
	require.Equal(t, []string{"a"}, ids(r.Tasks()))
}

func TestReconcilerSubscribeFailureClearsLoading(t *testing.T) {
	st := newCaptureStore()
	st.subscribeErr = errBoom
	r := NewReconciler(nil, nil)
	r.Attach(context.Background(), st, "p")
	require.False(t, r.Loading())
	require.Empty(t, r.Tasks())
}

func TestReconcilerReattachTearsDownPrevious(t *testing.T) {
	st := newCaptureStore()
	r := NewReconciler(nil, nil)
	r.Attach(context.Background(), st, "p1")
	first := st.sub(0)
	first.onSnapshot([]store.Record{{ID: "old"}})

	r.Attach(context.Background(), st, "p2")
	require.True(t, first.unsubscribed)
	require.True(t, r.Loading())
	require.Empty(t, r.Tasks())

	first.onSnapshot([]store.Record{{ID: "late"}})
	require.Empty(t, r.Tasks())

	st.sub(1).onSnapshot([]store.Record{{ID: "new"}})
	require.Equal(t, []string{"new"}, ids(r.Tasks()))
}

func TestReconcilerDetachDropsLateSnapshots(t *testing.T) {
	st := newCaptureStore()
	r := NewReconciler(nil, nil)
	r.Attach(context.Background(), st, "p")
	sub := st.sub(0)
	r.Detach()

	require.True(t, sub.unsubscribed)
	sub.onSnapshot([]store.Record{{ID: "late"}})
	require.Empty(t, r.Tasks())
}

func TestReconcilerNilStoreClearsLoading(t *testing.T) {
	changes := 0
	r := NewReconciler(nil, func() { changes++ })
	r.Attach(context.Background(), nil, "")
	require.False(t, r.Loading())
	require.Equal(t, 1, changes)
}
