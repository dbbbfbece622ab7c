package models

import (
	"time"

	"github.com/google/uuid"
)

type GroupRole string

const (
	GroupRoleNone     GroupRole = "none"
	GroupRoleStudent  GroupRole = "student"
	GroupRoleAdmin    GroupRole = "admin"
	GroupRoleTopAdmin GroupRole = "top_admin"
)

// Group is a classroom. OwnerID is the group's top admin and is the
// authoritative ownership signal; a top_admin membership row may mirror it
// but ownership never depends on the row existing.
type Group struct {
	BaseModel
	Name          string     `json:"name" gorm:"type:varchar(255);not null"`
	Description   *string    `json:"description,omitempty" gorm:"type:text"`
	Institute     *string    `json:"institute,omitempty" gorm:"type:varchar(255)"`
	Department    *string    `json:"department,omitempty" gorm:"type:varchar(255)"`
	OwnerID       uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	AdminOnlyChat bool       `json:"adminOnlyChat" gorm:"not null;default:false"`

	Owner       User              `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Memberships []GroupMembership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
	Tasks       []Task            `json:"-" gorm:"foreignKey:GroupID"`
}

type GroupMembership struct {
	BaseModel
	UserID   uuid.UUID `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_group"`
	GroupID  uuid.UUID `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_group"`
	Role     GroupRole `json:"role" gorm:"type:varchar(20);not null;default:'student'"`
	JoinedAt time.Time `json:"joinedAt"`
	User     User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group    Group     `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

type JoinRequest struct {
	BaseModel
	UserID  uuid.UUID         `json:"userID" gorm:"type:uuid;not null;index"`
	GroupID uuid.UUID         `json:"groupID" gorm:"type:uuid;not null;index"`
	Status  JoinRequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	User    User              `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group   Group             `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}
