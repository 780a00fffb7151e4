package models

import "time"

// ReviewNote is the communication record created on every reviewer action.
// Notes are immutable once written. AuthorID is nil for system notes.
// VisibleToDeveloper is false for private comments, escalations and queue
// clearing, which the submitter must never see.
type ReviewNote struct {
	NoteID             uint      `gorm:"primaryKey;column:note_id" json:"note_id"`
	WebappID           uint      `gorm:"column:webapp_id;index" json:"webapp_id"`
	VersionID          *uint     `gorm:"column:version_id" json:"version_id"`
	AuthorID           *int      `gorm:"column:author_id" json:"author_id"`
	Action             string    `gorm:"column:action" json:"action"`
	Body               string    `gorm:"column:body" json:"body"`
	VisibleToDeveloper bool      `gorm:"column:visible_to_developer" json:"visible_to_developer"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`

	Author *User `gorm:"foreignKey:AuthorID;references:UserID" json:"author,omitempty"`
}

func (ReviewNote) TableName() string { return "review_notes" }
