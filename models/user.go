package models

import (
	"time"
)

// Role IDs seeded in the roles table.
const (
	RoleDeveloper      = 1
	RoleReviewer       = 2
	RoleSeniorReviewer = 3
	RoleAdmin          = 4
)

type Role struct {
	RoleID                 int    `gorm:"primaryKey;column:role_id" json:"role_id"`
	RoleName               string `gorm:"column:role_name" json:"role_name"`
	ExcludeFromLeaderboard bool   `gorm:"column:exclude_from_leaderboard" json:"exclude_from_leaderboard"`
}

func (Role) TableName() string { return "roles" }

type User struct {
	UserID      int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	DisplayName string     `gorm:"column:display_name" json:"display_name"`
	Email       string     `gorm:"column:email;unique" json:"email"`
	Password    string     `gorm:"column:password" json:"-"`
	RoleID      int        `gorm:"column:role_id" json:"role_id"`
	CreateAt    *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt    *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt    *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	Role Role `gorm:"foreignKey:RoleID;references:RoleID" json:"role,omitempty"`
}

func (User) TableName() string { return "users" }

// IsReviewer reports whether the user may work the review queues at all.
func (u *User) IsReviewer() bool {
	return u.RoleID == RoleReviewer || u.RoleID == RoleSeniorReviewer ||
		u.RoleID == RoleAdmin
}

// CanReviewPrivileged reports whether the user may approve or reject versions
// declaring privileged capabilities.
func (u *User) CanReviewPrivileged() bool {
	return u.RoleID == RoleSeniorReviewer || u.RoleID == RoleAdmin
}

// CanEditApps is the elevated edit permission required to ban an app.
func (u *User) CanEditApps() bool {
	return u.RoleID == RoleAdmin
}
