package models

import "github.com/google/uuid"

type NotificationType string

const (
	NotificationNewTask         NotificationType = "task.created"
	NotificationNewSubmission   NotificationType = "submission.created"
	NotificationGraded          NotificationType = "submission.graded"
	NotificationMemberAdded     NotificationType = "group.member_added"
	NotificationMemberRemoved   NotificationType = "group.member_removed"
	NotificationJoinRequest     NotificationType = "group.join_requested"
	NotificationRequestResolved NotificationType = "group.join_resolved"
)

// Notification is addressed to a single user. Related entities are carried
// as dedicated columns rather than packed into the message text.
type Notification struct {
	BaseModel
	UserID       uuid.UUID        `json:"userID" gorm:"type:uuid;not null;index"`
	ActorID      uuid.UUID        `json:"actorID" gorm:"type:uuid;not null"`
	Type         NotificationType `json:"type" gorm:"type:varchar(50);not null"`
	GroupID      *uuid.UUID       `json:"groupID,omitempty" gorm:"type:uuid;index"`
	TaskID       *uuid.UUID       `json:"taskID,omitempty" gorm:"type:uuid;index"`
	SubmissionID *uuid.UUID       `json:"submissionID,omitempty" gorm:"type:uuid"`
	Message      string           `json:"message" gorm:"type:text;not null"`
	IsRead       bool             `json:"isRead" gorm:"not null;default:false;index"`

	Actor User `json:"actor,omitempty" gorm:"foreignKey:ActorID;references:ID"`
}

func (Notification) TableName() string {
	return "notifications"
}
