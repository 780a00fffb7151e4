package models

import "time"

// EscalationQueue flags a webapp for senior-reviewer attention. Presence of a
// row is the membership; the engine filters escalated webapps out of every
// other queue.
type EscalationQueue struct {
	EscalationID uint      `gorm:"primaryKey;column:escalation_id" json:"escalation_id"`
	WebappID     uint      `gorm:"column:webapp_id;uniqueIndex" json:"webapp_id"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`

	Webapp *Webapp `gorm:"foreignKey:WebappID;references:WebappID" json:"webapp,omitempty"`
}

func (EscalationQueue) TableName() string { return "escalation_queue" }

// RereviewQueue flags an already-approved webapp for a second review pass.
type RereviewQueue struct {
	RereviewID uint      `gorm:"primaryKey;column:rereview_id" json:"rereview_id"`
	WebappID   uint      `gorm:"column:webapp_id;uniqueIndex" json:"webapp_id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`

	Webapp *Webapp `gorm:"foreignKey:WebappID;references:WebappID" json:"webapp,omitempty"`
}

func (RereviewQueue) TableName() string { return "rereview_queue" }
