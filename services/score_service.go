package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"marketplace-review-api/config"
	"marketplace-review-api/models"

	"gorm.io/gorm"
)

// The ledger is the source of truth; totals and leaderboards are derived and
// cached under an epoch that every new score row advances. Same idiom as the
// in-memory status cache: package-level state guarded by a RWMutex.
var (
	scoreCacheMu sync.RWMutex
	scoreEpoch   uint64
	totalCache   = map[int]cachedTotal{}
	boardCache   = map[string]cachedBoard{}
)

type cachedTotal struct {
	epoch uint64
	total int
}

type cachedBoard struct {
	epoch uint64
	board *Leaderboard
}

// ScoreService awards incentive points on completed review actions and
// answers ranked leaderboard queries. ReviewerScore rows are append-only:
// they are never mutated or deleted.
type ScoreService struct {
	db *gorm.DB
}

func NewScoreService(db *gorm.DB) *ScoreService {
	if db == nil {
		db = config.DB
	}
	return &ScoreService{db: db}
}

// firstReviewEvents get the per-extra-device bonus; update and re-review
// events do not.
var firstReviewEvents = map[models.NoteKey]bool{
	models.ReviewedWebappHosted:     true,
	models.ReviewedWebappPackaged:   true,
	models.ReviewedWebappPrivileged: true,
}

// ResolveEvent maps a completed review to its score event. prevStatus is the
// webapp status before the action ran: an approved-class prior status on a
// packaged app means this was an update review, not a first review.
func ResolveEvent(webapp *models.Webapp, prevStatus models.Status,
	version *models.Version, inRereview bool) models.NoteKey {

	privileged := version != nil && version.IsPrivileged
	if webapp.IsPackaged {
		if prevStatus.IsApproved() {
			if privileged {
				return models.ReviewedWebappPrivilegedUpd
			}
			return models.ReviewedWebappUpdate
		}
		if privileged {
			return models.ReviewedWebappPrivileged
		}
		return models.ReviewedWebappPackaged
	}
	if prevStatus.IsApproved() && inRereview {
		return models.ReviewedWebappRereview
	}
	return models.ReviewedWebappHosted
}

// AwardPoints appends one ledger row for the resolved event inside the
// caller's transaction and returns the points awarded. First-time reviews of
// an app supporting n devices (n >= 2) add (n-1) * extra-platform points.
func (s *ScoreService) AwardPoints(tx *gorm.DB, reviewer models.User,
	webapp *models.Webapp, prevStatus models.Status, version *models.Version,
	inRereview bool) (int, error) {

	event := ResolveEvent(webapp, prevStatus, version, inRereview)
	score := models.ReviewedScores[event]
	if score == 0 {
		return 0, nil
	}
	if firstReviewEvents[event] && webapp.DeviceCount >= 2 {
		score += (webapp.DeviceCount - 1) * models.ReviewedScores[models.ReviewedWebappPlatformExtra]
	}

	webappID := webapp.WebappID
	row := models.ReviewerScore{
		UserID:   reviewer.UserID,
		WebappID: &webappID,
		Score:    score,
		NoteKey:  event,
	}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}
	log.Printf("awarding %d points to user %d for %q on webapp %d",
		score, reviewer.UserID, event, webapp.WebappID)
	return score, nil
}

// Invalidate drops every cached total and leaderboard. Called after any
// transaction that appended ledger rows has committed.
func (s *ScoreService) Invalidate() {
	scoreCacheMu.Lock()
	scoreEpoch++
	scoreCacheMu.Unlock()
}

// Total returns a reviewer's lifetime points.
func (s *ScoreService) Total(userID int) (int, error) {
	scoreCacheMu.RLock()
	cached, ok := totalCache[userID]
	epoch := scoreEpoch
	scoreCacheMu.RUnlock()
	if ok && cached.epoch == epoch {
		return cached.total, nil
	}

	var total int
	err := s.db.Model(&models.ReviewerScore{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(score), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}

	scoreCacheMu.Lock()
	if scoreEpoch == epoch {
		totalCache[userID] = cachedTotal{epoch: epoch, total: total}
	}
	scoreCacheMu.Unlock()
	return total, nil
}

// Recent returns the reviewer's most recent ledger rows.
func (s *ScoreService) Recent(userID, limit int) ([]models.ReviewerScore, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []models.ReviewerScore
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("score_id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// LeaderboardEntry is one ranked reviewer.
type LeaderboardEntry struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Rank   int    `json:"rank"`
	Total  int    `json:"total"`
	Level  string `json:"level"`
}

// Leaderboard is the ranked view for one requesting reviewer: the top of the
// board, plus the neighborhood around the requester when they rank outside
// the top five.
type Leaderboard struct {
	Top  []LeaderboardEntry `json:"leader_top"`
	Near []LeaderboardEntry `json:"leader_near"`
	Rank int                `json:"user_rank"`
}

// Leaderboard ranks all non-excluded reviewers by points over the trailing
// window. Reviewers whose role is excluded from incentives are never ranked.
func (s *ScoreService) Leaderboard(user models.User, days int) (*Leaderboard, error) {
	if days <= 0 {
		days = 7
	}
	key := fmt.Sprintf("%d:%d", user.UserID, days)

	scoreCacheMu.RLock()
	cached, ok := boardCache[key]
	epoch := scoreEpoch
	scoreCacheMu.RUnlock()
	if ok && cached.epoch == epoch {
		return cached.board, nil
	}

	since := time.Now().AddDate(0, 0, -days)

	type boardRow struct {
		UserID      int
		DisplayName string
		Total       int
	}
	var rows []boardRow
	err := s.db.Model(&models.ReviewerScore{}).
		Select("users.user_id AS user_id, users.display_name AS display_name, SUM(reviewer_scores.score) AS total").
		Joins("JOIN users ON users.user_id = reviewer_scores.user_id").
		Joins("JOIN roles ON roles.role_id = users.role_id").
		Where("roles.exclude_from_leaderboard = ?", false).
		Where("reviewer_scores.created_at >= ?", since).
		Group("users.user_id, users.display_name").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	scores := make([]LeaderboardEntry, 0, len(rows))
	rank := 0
	for i, row := range rows {
		entry := LeaderboardEntry{
			UserID: row.UserID,
			Name:   row.DisplayName,
			Rank:   i + 1,
			Total:  row.Total,
		}
		if lifetime, err := s.Total(row.UserID); err == nil {
			entry.Level = models.LevelFor(lifetime)
		}
		scores = append(scores, entry)
		if row.UserID == user.UserID {
			rank = i + 1
		}
	}

	board := &Leaderboard{Rank: rank, Top: []LeaderboardEntry{}, Near: []LeaderboardEntry{}}
	switch {
	case rank == 0 || rank <= 5:
		board.Top = firstN(scores, 5)
	default:
		board.Top = firstN(scores, 3)
		// Whoever is directly above the requester, the requester, and
		// whoever is directly below, if anyone.
		board.Near = append(board.Near, scores[rank-2], scores[rank-1])
		if rank < len(scores) {
			board.Near = append(board.Near, scores[rank])
		}
	}

	scoreCacheMu.Lock()
	if scoreEpoch == epoch {
		boardCache[key] = cachedBoard{epoch: epoch, board: board}
	}
	scoreCacheMu.Unlock()
	return board, nil
}

func firstN(entries []LeaderboardEntry, n int) []LeaderboardEntry {
	if len(entries) < n {
		n = len(entries)
	}
	return entries[:n]
}
