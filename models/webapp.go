package models

import "time"

// Webapp represents an application submitted to the marketplace for review.
type Webapp struct {
	WebappID         uint        `gorm:"primaryKey;column:webapp_id" json:"webapp_id"`
	Name             string      `gorm:"column:name" json:"name"`
	Slug             string      `gorm:"column:slug;unique" json:"slug"`
	Status           Status      `gorm:"column:status" json:"status"`
	PublishType      PublishType `gorm:"column:publish_type" json:"publish_type"`
	IsPackaged       bool        `gorm:"column:is_packaged" json:"is_packaged"`
	PriorityReview   bool        `gorm:"column:priority_review" json:"priority_review"`
	DisabledByUser   bool        `gorm:"column:disabled_by_user" json:"disabled_by_user"`
	DeviceCount      int         `gorm:"column:device_count" json:"device_count"`
	Region           *string     `gorm:"column:region" json:"region,omitempty"`
	AuthorID         int         `gorm:"column:author_id" json:"author_id"`
	CurrentVersionID *uint       `gorm:"column:current_version_id" json:"current_version_id"`
	LatestVersionID  *uint       `gorm:"column:latest_version_id" json:"latest_version_id"`
	CreatedAt        time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"column:updated_at" json:"updated_at"`

	Author         *User     `gorm:"foreignKey:AuthorID;references:UserID" json:"author,omitempty"`
	CurrentVersion *Version  `gorm:"foreignKey:CurrentVersionID;references:VersionID" json:"current_version,omitempty"`
	LatestVersion  *Version  `gorm:"foreignKey:LatestVersionID;references:VersionID" json:"latest_version,omitempty"`
	Versions       []Version `gorm:"foreignKey:WebappID;references:WebappID" json:"versions,omitempty"`
}

func (Webapp) TableName() string { return "webapps" }

// IsIncomplete reports whether the submission has nothing reviewable yet.
func (w *Webapp) IsIncomplete() bool {
	return w.Status == StatusIncomplete || w.LatestVersionID == nil
}

// Version is one uploaded revision of a webapp.
type Version struct {
	VersionID        uint       `gorm:"primaryKey;column:version_id" json:"version_id"`
	WebappID         uint       `gorm:"column:webapp_id;index" json:"webapp_id"`
	VersionString    string     `gorm:"column:version_string" json:"version_string"`
	Nomination       *time.Time `gorm:"column:nomination" json:"nomination"`
	Reviewed         *time.Time `gorm:"column:reviewed" json:"reviewed"`
	HasInfoRequest   bool       `gorm:"column:has_info_request" json:"has_info_request"`
	HasEditorComment bool       `gorm:"column:has_editor_comment" json:"has_editor_comment"`
	IsPrivileged     bool       `gorm:"column:is_privileged" json:"is_privileged"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`

	Files []File `gorm:"foreignKey:VersionID;references:VersionID" json:"files,omitempty"`
}

func (Version) TableName() string { return "versions" }

// File is the reviewable artifact attached to a version. Its status moves
// independently of the webapp status.
type File struct {
	FileID            uint       `gorm:"primaryKey;column:file_id" json:"file_id"`
	VersionID         uint       `gorm:"column:version_id;index" json:"version_id"`
	Filename          string     `gorm:"column:filename" json:"filename"`
	Status            Status     `gorm:"column:status" json:"status"`
	Reviewed          *time.Time `gorm:"column:reviewed" json:"reviewed"`
	DateStatusChanged *time.Time `gorm:"column:date_status_changed" json:"date_status_changed"`
	CreatedAt         time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (File) TableName() string { return "files" }
