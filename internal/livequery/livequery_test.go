package livequery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/models"
	"github.com/shelftrack/shelftrack/internal/session"
)

func newTestBackend(t *testing.T) *backend.Backend {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Store{}))
	return backend.New(db)
}

// manualSession drives session states by hand.
type manualSession struct {
	mu    sync.Mutex
	state session.State
	subs  []func(session.State)
}

func newManualSession(initial session.State) *manualSession {
	return &manualSession{state: initial}
}

func (m *manualSession) State() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *manualSession) Subscribe(fn func(session.State)) func() {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	state := m.state
	m.mu.Unlock()
	fn(state)
	return func() {}
}

func (m *manualSession) set(s session.State) {
	m.mu.Lock()
	m.state = s
	subs := make([]func(session.State), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func storesQuery(owner string) backend.Query {
	return backend.Query{
		Collection: "stores",
		Filters:    []backend.Filter{{Field: "owner_id", Value: owner}},
		Order:      &backend.Order{Field: "created_at", Desc: true},
	}
}

func seedStore(t *testing.T, b *backend.Backend, id, owner string, at time.Time) {
	t.Helper()
	s := models.Store{ID: id, Name: "Store " + id, OwnerID: owner, CreatedAt: at}
	require.NoError(t, backend.Create(context.Background(), b, "stores", &s))
}

func newCollection(b *backend.Backend, src SessionSource) *Collection[models.Store] {
	return NewCollection[models.Store](b, src, storesQuery)
}

func TestAbsentIdentity_EmptyListNotLoading(t *testing.T) {
	b := newTestBackend(t)
	sess := newManualSession(session.State{})

	col := newCollection(b, sess)
	col.Start()
	defer col.Close()

	snap := col.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Items)
	assert.NoError(t, snap.Err)
}

func TestPresentIdentity_DeliversOwnedStores(t *testing.T) {
	b := newTestBackend(t)
	seedStore(t, b, "s1", "u1", time.Now())
	seedStore(t, b, "s2", "u2", time.Now())

	sess := newManualSession(session.State{Identity: "u1"})
	col := newCollection(b, sess)
	col.Start()
	defer col.Close()

	require.Eventually(t, func() bool {
		snap := col.Snapshot()
		return !snap.Loading && len(snap.Items) == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap := col.Snapshot()
	assert.Equal(t, "s1", snap.Items[0].ID)
}

func TestSnapshotReplacement_LatestWins(t *testing.T) {
	b := newTestBackend(t)
	sess := newManualSession(session.State{Identity: "u1"})
	col := newCollection(b, sess)
	col.Start()
	defer col.Close()

	base := time.Now()
	for i, id := range []string{"s1", "s2", "s3"} {
		seedStore(t, b, id, "u1", base.Add(time.Duration(i)*time.Minute))
	}

	require.Eventually(t, func() bool {
		return len(col.Snapshot().Items) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// The view equals the latest materialized snapshot, newest first,
	// never a merge of intermediate states.
	items := col.Snapshot().Items
	assert.Equal(t, []string{"s3", "s2", "s1"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestLogout_ClosesSubscriptionAndClearsView(t *testing.T) {
	b := newTestBackend(t)
	seedStore(t, b, "s1", "u1", time.Now())

	sess := newManualSession(session.State{Identity: "u1"})
	col := newCollection(b, sess)
	col.Start()
	defer col.Close()

	require.Eventually(t, func() bool {
		return len(col.Snapshot().Items) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sess.set(session.State{})

	snap := col.Snapshot()
	assert.Empty(t, snap.Items)
	assert.False(t, snap.Loading)

	// A change after logout must not resurrect the old view.
	seedStore(t, b, "s9", "u1", time.Now())
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, col.Snapshot().Items)
}

func TestIdentitySwitch_NoStaleScopeAfterSwitch(t *testing.T) {
	b := newTestBackend(t)
	seedStore(t, b, "a1", "userA", time.Now())
	seedStore(t, b, "b1", "userB", time.Now())

	sess := newManualSession(session.State{Identity: "userA"})
	col := newCollection(b, sess)

	var mu sync.Mutex
	var afterSwitch bool
	var wrongScope int
	unsub := col.Subscribe(func(s Snapshot[models.Store]) {
		mu.Lock()
		defer mu.Unlock()
		if !afterSwitch {
			return
		}
		for _, item := range s.Items {
			if item.OwnerID == "userA" {
				wrongScope++
			}
		}
	})
	defer unsub()

	col.Start()
	defer col.Close()

	require.Eventually(t, func() bool {
		snap := col.Snapshot()
		return len(snap.Items) == 1 && snap.Items[0].OwnerID == "userA"
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	afterSwitch = true
	mu.Unlock()
	sess.set(session.State{Identity: "userB"})

	require.Eventually(t, func() bool {
		snap := col.Snapshot()
		return len(snap.Items) == 1 && snap.Items[0].OwnerID == "userB"
	}, 2*time.Second, 5*time.Millisecond)

	// Force more deliveries on the new subscription.
	seedStore(t, b, "b2", "userB", time.Now())
	require.Eventually(t, func() bool {
		return len(col.Snapshot().Items) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, wrongScope, "no snapshot from the old identity's scope after the switch")
}

func TestSubscriptionError_DistinctFromEmpty(t *testing.T) {
	b := newTestBackend(t)

	badQuery := func(identity string) backend.Query {
		return backend.Query{
			Collection: "stores",
			Filters:    []backend.Filter{{Field: "owner_id", Value: identity}},
			Order:      &backend.Order{Field: "no_such_column"},
		}
	}

	sess := newManualSession(session.State{Identity: "u1"})
	col := NewCollection[models.Store](b, sess, badQuery)
	col.Start()
	defer col.Close()

	require.Eventually(t, func() bool {
		return col.Snapshot().Err != nil
	}, 2*time.Second, 5*time.Millisecond)

	snap := col.Snapshot()
	assert.Error(t, snap.Err, "query failure must be distinguishable from zero items")
	assert.False(t, snap.Loading)
}

func TestClose_NoDeliveryAfterReturn(t *testing.T) {
	b := newTestBackend(t)
	sess := newManualSession(session.State{Identity: "u1"})
	col := newCollection(b, sess)

	var mu sync.Mutex
	deliveries := 0
	col.Subscribe(func(s Snapshot[models.Store]) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	col.Start()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 2 // attach + first snapshot
	}, 2*time.Second, 5*time.Millisecond)

	col.Close()
	mu.Lock()
	settled := deliveries
	mu.Unlock()

	seedStore(t, b, "s1", "u1", time.Now())
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, settled, deliveries)
}
