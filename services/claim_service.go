package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"marketplace-review-api/config"
	"marketplace-review-api/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// DefaultViewingInterval is how often an open review session heartbeats.
// Claims live for twice the interval to absorb latency between pings.
const DefaultViewingInterval = 8 * time.Second

// Clock abstracts time for the in-memory claim store so expiry is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClaimStore tracks who is looking at what right now. Claims are advisory:
// last writer wins, reads never block, and races are tolerated by design.
type ClaimStore interface {
	// Holder returns the user currently claiming the webapp, if any
	// unexpired claim exists.
	Holder(webappID uint) (userID int, ok bool)
	// SetHolder records a claim, replacing any previous holder.
	SetHolder(webappID uint, userID int, ttl time.Duration)
	// AddReviewing adds the webapp to the user's personal work-in-progress
	// set.
	AddReviewing(userID int, webappID uint, ttl time.Duration)
	// Reviewing returns the user's personal set, unfiltered. Callers prune
	// entries whose global claim has expired or moved.
	Reviewing(userID int) []uint
}

// MemoryClaimStore is the single-instance claim store: a mutex-guarded map
// with lazy expiry against an injectable clock.
type MemoryClaimStore struct {
	clock Clock

	mu        sync.Mutex
	claims    map[uint]memoryClaim
	reviewing map[int]map[uint]time.Time
}

type memoryClaim struct {
	userID  int
	expires time.Time
}

func NewMemoryClaimStore(clock Clock) *MemoryClaimStore {
	if clock == nil {
		clock = systemClock{}
	}
	return &MemoryClaimStore{
		clock:     clock,
		claims:    map[uint]memoryClaim{},
		reviewing: map[int]map[uint]time.Time{},
	}
}

func (m *MemoryClaimStore) Holder(webappID uint) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.claims[webappID]
	if !ok {
		return 0, false
	}
	if m.clock.Now().After(claim.expires) {
		delete(m.claims, webappID)
		return 0, false
	}
	return claim.userID, true
}

func (m *MemoryClaimStore) SetHolder(webappID uint, userID int, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[webappID] = memoryClaim{userID: userID, expires: m.clock.Now().Add(ttl)}
}

func (m *MemoryClaimStore) AddReviewing(userID int, webappID uint, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.reviewing[userID]
	if !ok {
		set = map[uint]time.Time{}
		m.reviewing[userID] = set
	}
	set[webappID] = m.clock.Now().Add(ttl)
}

func (m *MemoryClaimStore) Reviewing(userID int) []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	var ids []uint
	for id, expires := range m.reviewing[userID] {
		if now.After(expires) {
			delete(m.reviewing[userID], id)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// RedisClaimStore is the multi-instance claim store. TTL bookkeeping is
// delegated to redis key expiry.
type RedisClaimStore struct {
	client *redis.Client
}

func NewRedisClaimStore(client *redis.Client) *RedisClaimStore {
	return &RedisClaimStore{client: client}
}

func claimKey(webappID uint) string {
	return "review_viewing:" + strconv.FormatUint(uint64(webappID), 10)
}

func reviewingKey(userID int) string {
	return "myapps:" + strconv.Itoa(userID)
}

func (r *RedisClaimStore) Holder(webappID uint) (int, bool) {
	userID, err := r.client.Get(context.Background(), claimKey(webappID)).Int()
	if err != nil {
		return 0, false
	}
	return userID, true
}

func (r *RedisClaimStore) SetHolder(webappID uint, userID int, ttl time.Duration) {
	r.client.Set(context.Background(), claimKey(webappID), userID, ttl)
}

func (r *RedisClaimStore) AddReviewing(userID int, webappID uint, ttl time.Duration) {
	ctx := context.Background()
	key := reviewingKey(userID)
	r.client.SAdd(ctx, key, strconv.FormatUint(uint64(webappID), 10))
	r.client.Expire(ctx, key, ttl)
}

func (r *RedisClaimStore) Reviewing(userID int) []uint {
	members, err := r.client.SMembers(context.Background(), reviewingKey(userID)).Result()
	if err != nil {
		return nil
	}
	ids := make([]uint, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

var (
	defaultStoreOnce sync.Once
	defaultStore     ClaimStore
)

// defaultClaimStore picks redis when configured, otherwise the in-process
// map. Shared across requests.
func defaultClaimStore() ClaimStore {
	defaultStoreOnce.Do(func() {
		if config.Redis != nil {
			defaultStore = NewRedisClaimStore(config.Redis)
		} else {
			defaultStore = NewMemoryClaimStore(nil)
		}
	})
	return defaultStore
}

// ViewingStatus is the heartbeat response for one webapp.
type ViewingStatus struct {
	CurrentID       int    `json:"current"`
	CurrentName     string `json:"current_name"`
	IsUser          bool   `json:"is_user"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// ClaimService gives reviewers a soft signal that a submission is already
// being looked at. Nothing here ever blocks a second reviewer from acting.
type ClaimService struct {
	db       *gorm.DB
	store    ClaimStore
	interval time.Duration
}

func NewClaimService(db *gorm.DB, store ClaimStore, interval time.Duration) *ClaimService {
	if db == nil {
		db = config.DB
	}
	if store == nil {
		store = defaultClaimStore()
	}
	if interval <= 0 {
		interval = DefaultViewingInterval
	}
	return &ClaimService{db: db, store: store, interval: interval}
}

// Claim registers (or refreshes) the reviewer's claim on a webapp. If
// somebody else holds an unexpired claim the caller learns who, and their
// claim stays in place.
func (s *ClaimService) Claim(webappID uint, user models.User) ViewingStatus {
	ttl := s.interval * 2
	holder, ok := s.store.Holder(webappID)
	if !ok || holder == user.UserID {
		s.store.SetHolder(webappID, user.UserID, ttl)
		holder = user.UserID
	}
	s.store.AddReviewing(user.UserID, webappID, ttl)

	status := ViewingStatus{
		CurrentID:       holder,
		IsUser:          holder == user.UserID,
		IntervalSeconds: int(s.interval.Seconds()),
	}
	if status.IsUser {
		status.CurrentName = user.DisplayName
	} else {
		status.CurrentName = s.displayName(holder)
	}
	return status
}

// QueueViewing reports, for a page of listed webapps, which ones somebody
// else is currently reviewing.
func (s *ClaimService) QueueViewing(webappIDs []uint, user models.User) map[uint]string {
	viewing := map[uint]string{}
	for _, id := range webappIDs {
		holder, ok := s.store.Holder(id)
		if ok && holder != user.UserID {
			viewing[id] = s.displayName(holder)
		}
	}
	return viewing
}

// Mine returns the webapps in the reviewer's personal work-in-progress list,
// pruned of anything whose global claim expired or was taken over.
func (s *ClaimService) Mine(user models.User) ([]models.Webapp, error) {
	var valid []uint
	for _, id := range s.store.Reviewing(user.UserID) {
		if holder, ok := s.store.Holder(id); ok && holder == user.UserID {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []models.Webapp{}, nil
	}
	var apps []models.Webapp
	err := s.db.Where("webapp_id IN ?", valid).Find(&apps).Error
	return apps, err
}

func (s *ClaimService) displayName(userID int) string {
	var user models.User
	if err := s.db.First(&user, "user_id = ?", userID).Error; err != nil {
		return ""
	}
	return user.DisplayName
}
