package controllers

import (
	"net/http"
	"strconv"

	"marketplace-review-api/models"
	"marketplace-review-api/services"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the ranked reviewer standings for a recent window.
// GET /api/v1/reviewers/leaderboard?days=7
func GetLeaderboard(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		days = 7
	}

	scores := services.NewScoreService(nil)
	board, err := scores.Leaderboard(currentUser(c), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leaderboard"})
		return
	}

	c.JSON(http.StatusOK, board)
}

// GetMyScore returns the reviewer's lifetime total, level and recent ledger.
// GET /api/v1/reviewers/score
func GetMyScore(c *gin.Context) {
	user := currentUser(c)
	scores := services.NewScoreService(nil)

	total, err := scores.Total(user.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load score"})
		return
	}
	recent, err := scores.Recent(user.UserID, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load score"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"level":  models.LevelFor(total),
		"recent": recent,
	})
}
