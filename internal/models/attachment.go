package models

import "github.com/google/uuid"

type Attachment struct {
	BaseModel
	Name         string     `json:"name" gorm:"type:varchar(255);not null"`
	MimeType     string     `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size         int64      `json:"size" gorm:"not null;default:0"`
	StoragePath  string     `json:"-" gorm:"type:text;not null"`
	UploaderID   uuid.UUID  `json:"uploaderID" gorm:"type:uuid;not null;index"`
	TaskID       *uuid.UUID `json:"taskID,omitempty" gorm:"type:uuid;index"`
	SubmissionID *uuid.UUID `json:"submissionID,omitempty" gorm:"type:uuid;index"`

	URL string `json:"url,omitempty" gorm:"-"`
}
