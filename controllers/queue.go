package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"marketplace-review-api/models"
	"marketplace-review-api/services"

	"github.com/gin-gonic/gin"
)

// GetQueue lists one named review queue with sorting and pagination.
// GET /api/v1/reviewers/queues/:name
func GetQueue(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "0"))

	opts := services.ListOptions{
		Sort:    c.Query("sort"),
		Order:   c.Query("order"),
		Page:    page,
		PerPage: perPage,
		Region:  c.Query("region"),
	}

	queueService := services.NewQueueService(nil)
	listing, err := queueService.List(c.Param("name"), opts)
	if err != nil {
		if errors.Is(err, services.ErrUnknownQueue) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown queue"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load queue"})
		return
	}

	// Flag apps another reviewer currently has open.
	user := currentUser(c)
	ids := make([]uint, 0, len(listing.Apps))
	for _, app := range listing.Apps {
		ids = append(ids, app.WebappID)
	}
	viewing := services.NewClaimService(nil, nil, 0).QueueViewing(ids, user)

	c.JSON(http.StatusOK, gin.H{
		"queue":   c.Param("name"),
		"listing": listing,
		"viewing": viewing,
	})
}

// GetQueueCounts returns the size of every queue for the tab headers.
// GET /api/v1/reviewers/queues
func GetQueueCounts(c *gin.Context) {
	queueService := services.NewQueueService(nil)
	c.JSON(http.StatusOK, gin.H{
		"counts": queueService.Counts(c.Query("region")),
	})
}

// currentUser pulls the authenticated user the middleware stored.
func currentUser(c *gin.Context) models.User {
	value, exists := c.Get("user")
	if !exists {
		return models.User{}
	}
	user, _ := value.(models.User)
	return user
}
