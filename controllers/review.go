package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"marketplace-review-api/services"

	"github.com/gin-gonic/gin"
)

// ReviewController wires the state machine to its post-commit collaborators.
type ReviewController struct {
	reviews  *services.ReviewService
	indexer  services.Indexer
	notifier services.Notifier
}

func NewReviewController(reviews *services.ReviewService, indexer services.Indexer, notifier services.Notifier) *ReviewController {
	if reviews == nil {
		reviews = services.NewReviewService(nil, nil)
	}
	if indexer == nil {
		indexer = services.LogIndexer{}
	}
	if notifier == nil {
		notifier = services.LogNotifier{}
	}
	return &ReviewController{reviews: reviews, indexer: indexer, notifier: notifier}
}

// GetActions returns the actions the current reviewer may take on a webapp.
// GET /api/v1/reviewers/apps/:id/actions
func (rc *ReviewController) GetActions(c *gin.Context) {
	webappID, ok := pathID(c, "id")
	if !ok {
		return
	}
	versionID := queryID(c, "version_id")

	actions, err := rc.reviews.AvailableActions(webappID, versionID, currentUser(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webapp not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

type performActionRequest struct {
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

// PerformAction executes one review decision.
// POST /api/v1/reviewers/apps/:id/review
func (rc *ReviewController) PerformAction(c *gin.Context) {
	webappID, ok := pathID(c, "id")
	if !ok {
		return
	}
	versionID := queryID(c, "version_id")

	var req performActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := rc.reviews.PerformAction(
		webappID, versionID,
		services.ActionName(req.Action),
		services.ActionPayload{Comments: req.Comments},
		currentUser(c),
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown review action"})
		case errors.Is(err, services.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Action not available for this app"})
		case errors.Is(err, services.ErrIncompleteSubmission):
			c.JSON(http.StatusConflict, gin.H{"error": "Submission has nothing reviewable"})
		case errors.Is(err, services.ErrSigningFailure):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Package signing failed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to perform action"})
		}
		return
	}

	rc.dispatch(result.Events)

	c.JSON(http.StatusOK, gin.H{
		"new_status":     result.NewStatus,
		"status_name":    result.NewStatus.String(),
		"points_awarded": result.PointsAwarded,
	})
}

// dispatch drains post-commit events. The decision is already committed, so
// failures here are logged rather than surfaced to the reviewer.
func (rc *ReviewController) dispatch(events []services.Event) {
	for _, event := range events {
		switch event.Kind {
		case services.EventReindex, services.EventStorefront:
			rc.indexer.Reindex(event.WebappID)
		case services.EventNotify:
			if err := rc.notifier.Notify(event); err != nil {
				log.Printf("Warning: Failed to notify for webapp %d: %v", event.WebappID, err)
			}
		}
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webapp id"})
		return 0, false
	}
	return uint(id), true
}

func queryID(c *gin.Context, name string) uint {
	id, _ := strconv.ParseUint(c.Query(name), 10, 64)
	return uint(id)
}
