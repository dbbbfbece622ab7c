package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission holds a student's work for a task. One row per (task, student);
// resubmitting updates the row in place.
type Submission struct {
	BaseModel
	TaskID      uuid.UUID `json:"taskID" gorm:"type:uuid;not null;index;uniqueIndex:idx_task_student"`
	StudentID   uuid.UUID `json:"studentID" gorm:"type:uuid;not null;index;uniqueIndex:idx_task_student"`
	Content     string    `json:"content" gorm:"type:text"`
	Link        *string   `json:"link,omitempty" gorm:"type:text"`
	SubmittedAt time.Time `json:"submittedAt" gorm:"not null"`

	Task        Task         `json:"task,omitempty" gorm:"foreignKey:TaskID"`
	Student     User         `json:"student,omitempty" gorm:"foreignKey:StudentID;references:ID"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:SubmissionID"`
	Score       *Score       `json:"score,omitempty" gorm:"foreignKey:SubmissionID"`
}

// Score is the grade for a submission. One row per submission; re-grading
// updates the row in place.
type Score struct {
	BaseModel
	SubmissionID uuid.UUID `json:"submissionID" gorm:"type:uuid;not null;uniqueIndex"`
	Value        float64   `json:"value" gorm:"not null"`
	Feedback     string    `json:"feedback" gorm:"type:text"`
	GraderID     uuid.UUID `json:"graderID" gorm:"type:uuid;not null"`

	Grader User `json:"grader,omitempty" gorm:"foreignKey:GraderID;references:ID"`
}
