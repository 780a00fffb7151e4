package services

import (
	"testing"
	"time"

	"marketplace-review-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestClaimIsAdvisoryAndExpires(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryClaimStore(clock)
	svc := NewClaimService(db, store, 8*time.Second)

	alice := seedUser(t, db, "alice", models.RoleReviewer)
	bob := seedUser(t, db, "bob", models.RoleReviewer)

	status := svc.Claim(42, alice)
	assert.True(t, status.IsUser)
	assert.Equal(t, alice.UserID, status.CurrentID)
	assert.Equal(t, 8, status.IntervalSeconds)

	// Bob sees Alice's claim and does not take it over.
	status = svc.Claim(42, bob)
	assert.False(t, status.IsUser)
	assert.Equal(t, alice.UserID, status.CurrentID)
	assert.Equal(t, "alice", status.CurrentName)

	// Claims live for two heartbeat intervals, then anyone may take over.
	clock.advance(17 * time.Second)
	status = svc.Claim(42, bob)
	assert.True(t, status.IsUser)
	assert.Equal(t, bob.UserID, status.CurrentID)
}

func TestClaimHeartbeatExtendsHold(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryClaimStore(clock)
	svc := NewClaimService(db, store, 8*time.Second)

	alice := seedUser(t, db, "alice", models.RoleReviewer)
	bob := seedUser(t, db, "bob", models.RoleReviewer)

	svc.Claim(42, alice)
	clock.advance(10 * time.Second)
	svc.Claim(42, alice) // heartbeat refreshes the TTL
	clock.advance(10 * time.Second)

	status := svc.Claim(42, bob)
	assert.False(t, status.IsUser)
	assert.Equal(t, alice.UserID, status.CurrentID)
}

func TestQueueViewingOmitsOwnClaims(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryClaimStore(clock)
	svc := NewClaimService(db, store, 8*time.Second)

	alice := seedUser(t, db, "alice", models.RoleReviewer)
	bob := seedUser(t, db, "bob", models.RoleReviewer)

	svc.Claim(1, alice)
	svc.Claim(2, bob)

	viewing := svc.QueueViewing([]uint{1, 2, 3}, alice)
	assert.Equal(t, map[uint]string{2: "bob"}, viewing)
}

func TestMinePrunesLostClaims(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryClaimStore(clock)
	svc := NewClaimService(db, store, 8*time.Second)

	alice := seedUser(t, db, "alice", models.RoleReviewer)
	bob := seedUser(t, db, "bob", models.RoleReviewer)

	held := seedApp(t, db, appSpec{name: "held", status: models.StatusPending})
	lost := seedApp(t, db, appSpec{name: "lost", status: models.StatusPending})

	svc.Claim(held.WebappID, alice)
	svc.Claim(lost.WebappID, alice)

	// Alice's claim on "lost" lapses and Bob takes it over.
	clock.advance(17 * time.Second)
	svc.Claim(held.WebappID, alice)
	svc.Claim(lost.WebappID, bob)

	apps, err := svc.Mine(alice)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "held", apps[0].Name)
}
