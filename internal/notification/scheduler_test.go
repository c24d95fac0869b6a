package notification

import (
	"context"
	"testing"
	"time"

	"CampusNotify/internal/auth"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testScheduler(store *fakeStore, dir *fakeDirectory) *NotificationScheduler {
	engine := testEngine(store, dir, newFakeRegistry(), nil)
	return &NotificationScheduler{
		store:    store,
		engine:   engine,
		logger:   zap.NewNop(),
		interval: time.Second,
	}
}

func scheduledNotification(sender auth.User, at time.Time) *Notification {
	n := queuedNotification(sender, Target{StudentsOnly: true})
	n.Status = StatusScheduled
	n.ScheduledAt = &at
	return n
}

func TestTickDeliversDueNotifications(t *testing.T) {
	sender := testUser(auth.RoleLecturer, "physics", 0)
	student := testUser(auth.RoleStudent, "physics", 200)
	store := newFakeStore()
	dir := &fakeDirectory{users: []auth.User{sender, student}}

	due := scheduledNotification(sender, time.Now().Add(-time.Minute))
	notDue := scheduledNotification(sender, time.Now().Add(time.Hour))
	store.put(due)
	store.put(notDue)

	testScheduler(store, dir).Tick(context.Background())

	require.Equal(t, StatusCompleted, store.get(due.ID).Status)
	require.Equal(t, StatusScheduled, store.get(notDue.ID).Status)
}

func TestTickIsolatesItemFailures(t *testing.T) {
	goodSender := testUser(auth.RoleLecturer, "physics", 0)
	missingSender := testUser(auth.RoleLecturer, "physics", 0)
	student := testUser(auth.RoleStudent, "physics", 200)

	store := newFakeStore()
	// missingSender is not in the directory, so its notification fails
	// during recipient sourcing.
	dir := &fakeDirectory{users: []auth.User{goodSender, student}}

	first := scheduledNotification(goodSender, time.Now().Add(-3*time.Minute))
	second := scheduledNotification(missingSender, time.Now().Add(-2*time.Minute))
	third := scheduledNotification(goodSender, time.Now().Add(-time.Minute))
	store.put(first)
	store.put(second)
	store.put(third)

	testScheduler(store, dir).Tick(context.Background())

	require.Equal(t, StatusCompleted, store.get(first.ID).Status)
	require.Equal(t, StatusFailed, store.get(second.ID).Status)
	require.Equal(t, StatusCompleted, store.get(third.ID).Status)
}

func TestProcessDueSkipsLostClaim(t *testing.T) {
	sender := testUser(auth.RoleLecturer, "physics", 0)
	store := newFakeStore()
	dir := &fakeDirectory{users: []auth.User{sender}}

	n := scheduledNotification(sender, time.Now().Add(-time.Minute))
	store.put(n)

	// Another tick already moved the document to sending.
	claimed, err := store.TransitionStatus(context.Background(), n.ID, StatusScheduled, StatusSending)
	require.NoError(t, err)
	require.True(t, claimed)

	testScheduler(store, dir).processDue(context.Background(), n)

	// The losing tick must not touch the document.
	require.Equal(t, StatusSending, store.get(n.ID).Status)
}

func TestTickOnlyOneOfOverlappingClaimsWins(t *testing.T) {
	sender := testUser(auth.RoleLecturer, "physics", 0)
	student := testUser(auth.RoleStudent, "physics", 200)
	store := newFakeStore()
	dir := &fakeDirectory{users: []auth.User{sender, student}}

	n := scheduledNotification(sender, time.Now().Add(-time.Minute))
	store.put(n)

	s := testScheduler(store, dir)
	s.processDue(context.Background(), n)
	s.processDue(context.Background(), n) // overlapping tick replays the same batch entry

	saved := store.get(n.ID)
	require.Equal(t, StatusCompleted, saved.Status)
	require.Len(t, saved.Items, 1, "second claim must not duplicate delivery items")
}
