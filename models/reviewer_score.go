package models

import "time"

// ReviewerScore is one row of the append-only incentive ledger. Totals and
// leaderboards are always derived from these rows, never stored.
type ReviewerScore struct {
	ScoreID   uint      `gorm:"primaryKey;column:score_id" json:"score_id"`
	UserID    int       `gorm:"column:user_id;index" json:"user_id"`
	WebappID  *uint     `gorm:"column:webapp_id" json:"webapp_id"`
	Score     int       `gorm:"column:score" json:"score"`
	NoteKey   NoteKey   `gorm:"column:note_key" json:"note_key"`
	Note      string    `gorm:"column:note" json:"note"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	User   *User   `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Webapp *Webapp `gorm:"foreignKey:WebappID;references:WebappID" json:"webapp,omitempty"`
}

func (ReviewerScore) TableName() string { return "reviewer_scores" }
