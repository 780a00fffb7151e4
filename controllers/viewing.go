package controllers

import (
	"net/http"

	"marketplace-review-api/services"

	"github.com/gin-gonic/gin"
)

// PostReviewViewing claims (or heartbeats) the current reviewer's hold on a
// webapp and reports who holds it now.
// POST /api/v1/reviewers/apps/:id/viewing
func PostReviewViewing(c *gin.Context) {
	webappID, ok := pathID(c, "id")
	if !ok {
		return
	}

	claims := services.NewClaimService(nil, nil, 0)
	c.JSON(http.StatusOK, claims.Claim(webappID, currentUser(c)))
}

// GetMyReviewing lists the webapps the reviewer still holds claims on.
// GET /api/v1/reviewers/reviewing
func GetMyReviewing(c *gin.Context) {
	claims := services.NewClaimService(nil, nil, 0)
	apps, err := claims.Mine(currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load reviewing list"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"apps": apps})
}
