package services

import (
	"errors"
	"fmt"
	"sort"

	"marketplace-review-api/config"
	"marketplace-review-api/models"
	"marketplace-review-api/utils"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// Queue names served by the classifier.
const (
	QueuePending   = "pending"
	QueueRereview  = "rereview"
	QueueEscalated = "escalated"
	QueueUpdates   = "updates"
)

var ErrUnknownQueue = errors.New("unknown review queue")

// QueueService classifies submissions into the named review queues and
// produces their ordering. All classifier methods are pure reads.
type QueueService struct {
	db *gorm.DB
}

func NewQueueService(db *gorm.DB) *QueueService {
	if db == nil {
		db = config.DB
	}
	return &QueueService{db: db}
}

// ListOptions carries client-supplied listing parameters. Invalid sort/order
// values fall back to the queue default; out-of-range pages clamp to page 1.
type ListOptions struct {
	Sort    string
	Order   string
	Page    int
	PerPage int
	Region  string
}

type QueueListing struct {
	Apps       []models.Webapp `json:"apps"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
	Sort       string          `json:"sort"`
	Order      string          `json:"order"`
}

// queueSpec describes how one named queue is filtered and dated.
type queueSpec struct {
	dateSort string            // natural date field name for sort fallback
	columns  map[string]string // sort name -> SQL column expression
}

var queueSpecs = map[string]queueSpec{
	QueuePending: {
		dateSort: utils.SortNomination,
		columns: map[string]string{
			utils.SortNomination: "latest.nomination",
			utils.SortCreated:    "webapps.created_at",
		},
	},
	QueueUpdates: {
		dateSort: utils.SortNomination,
		columns: map[string]string{
			utils.SortNomination: "latest.nomination",
			utils.SortCreated:    "webapps.created_at",
		},
	},
	QueueRereview: {
		dateSort: utils.SortCreated,
		columns: map[string]string{
			utils.SortCreated: "rq.created_at",
		},
	},
	QueueEscalated: {
		dateSort: utils.SortCreated,
		columns: map[string]string{
			utils.SortCreated: "eq.created_at",
		},
	},
}

// escalatedIDs is the subquery every other queue excludes.
func (s *QueueService) escalatedIDs() *gorm.DB {
	return s.db.Model(&models.EscalationQueue{}).Select("webapp_id")
}

// queueQuery builds the base filtered query for a named queue.
func (s *QueueService) queueQuery(name, region string) (*gorm.DB, error) {
	q := s.db.Model(&models.Webapp{}).
		Where("webapps.disabled_by_user = ?", false)

	switch name {
	case QueuePending:
		q = q.Joins("JOIN versions latest ON latest.version_id = webapps.latest_version_id").
			Where("webapps.status = ?", models.StatusPending).
			Where("EXISTS (SELECT 1 FROM files WHERE files.version_id = latest.version_id AND files.status = ?)",
				models.StatusPending).
			Where("webapps.webapp_id NOT IN (?)", s.escalatedIDs())
	case QueueUpdates:
		q = q.Joins("JOIN versions latest ON latest.version_id = webapps.latest_version_id").
			Where("webapps.status IN ?", models.ApprovedStatuses).
			Where("webapps.is_packaged = ?", true).
			Where("EXISTS (SELECT 1 FROM files WHERE files.version_id = latest.version_id AND files.status = ?)",
				models.StatusPending).
			Where("webapps.webapp_id NOT IN (?)", s.escalatedIDs())
	case QueueRereview:
		q = q.Joins("JOIN rereview_queue rq ON rq.webapp_id = webapps.webapp_id").
			Where("webapps.webapp_id NOT IN (?)", s.escalatedIDs())
	case QueueEscalated:
		q = q.Joins("JOIN escalation_queue eq ON eq.webapp_id = webapps.webapp_id")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}

	if region != "" {
		q = q.Where("webapps.region = ?", region)
	}
	return q, nil
}

// List returns one page of the named queue. Priority-flagged submissions are
// pinned first on date sorts in both directions; name sorts use locale-aware
// collation with no priority pin.
func (s *QueueService) List(name string, opts ListOptions) (*QueueListing, error) {
	spec, ok := queueSpecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}

	sort, order := utils.CleanSortParams(opts.Sort, opts.Order, spec.dateSort)
	page, perPage := utils.CleanPageParams(opts.Page, opts.PerPage)

	countQuery, err := s.queueQuery(name, opts.Region)
	if err != nil {
		return nil, err
	}
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}
	page = utils.ClampPage(page, perPage, total)

	listing := &QueueListing{
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: utils.TotalPages(total, perPage),
		Sort:       sort,
		Order:      order,
	}

	q, err := s.queueQuery(name, opts.Region)
	if err != nil {
		return nil, err
	}
	q = q.Preload("Author").Preload("LatestVersion.Files")

	if sort == utils.SortName {
		apps, err := s.listByName(q, order, page, perPage)
		if err != nil {
			return nil, err
		}
		listing.Apps = apps
		return listing, nil
	}

	column, ok := spec.columns[sort]
	if !ok {
		column = spec.columns[spec.dateSort]
	}
	direction := "ASC"
	if order == utils.OrderDesc {
		direction = "DESC"
	}

	var apps []models.Webapp
	err = q.Order("webapps.priority_review DESC").
		Order(column + " " + direction).
		Order("webapps.created_at " + direction).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	listing.Apps = apps
	return listing, nil
}

// listByName fetches the whole queue and sorts it by collated name in Go.
// Databases disagree on collation, so this is done application-side.
func (s *QueueService) listByName(q *gorm.DB, order string, page, perPage int) ([]models.Webapp, error) {
	var apps []models.Webapp
	if err := q.Find(&apps).Error; err != nil {
		return nil, err
	}

	coll := collate.New(language.Und, collate.IgnoreCase)
	less := func(i, j int) bool {
		if c := coll.CompareString(apps[i].Name, apps[j].Name); c != 0 {
			return c < 0
		}
		return apps[i].WebappID < apps[j].WebappID
	}
	if order == utils.OrderDesc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.Slice(apps, less)

	start := (page - 1) * perPage
	if start >= len(apps) {
		start = 0
	}
	end := start + perPage
	if end > len(apps) {
		end = len(apps)
	}
	return apps[start:end], nil
}

// Counts returns per-queue totals for the queue navigation header. Errors on
// individual queues degrade to a zero count.
func (s *QueueService) Counts(region string) map[string]int64 {
	counts := make(map[string]int64, len(queueSpecs))
	for name := range queueSpecs {
		q, err := s.queueQuery(name, region)
		if err != nil {
			continue
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			counts[name] = 0
			continue
		}
		counts[name] = n
	}
	return counts
}
