package models

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionsVisibility string

const (
	SubmissionsPrivate SubmissionsVisibility = "private"
	SubmissionsPublic  SubmissionsVisibility = "public"
)

const DefaultMaxScore = 10

type Task struct {
	BaseModel
	GroupID               uuid.UUID             `json:"groupID" gorm:"type:uuid;not null;index"`
	Title                 string                `json:"title" gorm:"type:varchar(255);not null"`
	Description           string                `json:"description" gorm:"type:text"`
	Deadline              *time.Time            `json:"deadline,omitempty"`
	MaxScore              float64               `json:"maxScore" gorm:"not null;default:10"`
	SubmissionsVisibility SubmissionsVisibility `json:"submissionsVisibility" gorm:"type:varchar(20);not null;default:'private'"`
	CreatorID             uuid.UUID             `json:"creatorID" gorm:"type:uuid;not null"`

	Group       Group        `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Creator     User         `json:"creator,omitempty" gorm:"foreignKey:CreatorID;references:ID"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:TaskID"`
	Submissions []Submission `json:"-" gorm:"foreignKey:TaskID"`
}
