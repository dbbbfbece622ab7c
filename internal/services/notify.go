package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/classhub/backend/internal/models"
	"github.com/classhub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifier fans out best-effort notifications after a mutation commits.
// Rows are written by a background goroutine; insert failures are logged and
// never reach the caller of the primary mutation.
type Notifier struct {
	DB    *gorm.DB
	queue chan models.Notification
	wg    sync.WaitGroup
}

func NewNotifier(db *gorm.DB, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	n := &Notifier{
		DB:    db,
		queue: make(chan models.Notification, bufferSize),
	}
	go n.processQueue()
	return n
}

// Dispatch enqueues one notification per recipient. A row addressed to its
// own actor is dropped.
func (n *Notifier) Dispatch(rows []models.Notification) {
	for _, row := range rows {
		if row.UserID == row.ActorID {
			continue
		}

		n.wg.Add(1)
		select {
		case n.queue <- row:
		default:
			n.wg.Done()
			logger.Warn("notify_queue_full", map[string]interface{}{
				"type":    string(row.Type),
				"user_id": row.UserID.String(),
				"dropped": true,
			})
		}
	}
}

// Wait blocks until every enqueued notification has been processed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) processQueue() {
	for row := range n.queue {
		if err := n.DB.Create(&row).Error; err != nil {
			logger.Error("notification_insert_failed", err, map[string]interface{}{
				"type":    string(row.Type),
				"user_id": row.UserID.String(),
			})
		}
		n.wg.Done()
	}
}

func (n *Notifier) TaskCreated(actorID uuid.UUID, task *models.Task, group *models.Group) {
	actorName := n.actorName(actorID)

	rows := make([]models.Notification, 0)
	for _, uid := range n.groupMemberIDs(group) {
		rows = append(rows, models.Notification{
			UserID:  uid,
			ActorID: actorID,
			Type:    models.NotificationNewTask,
			GroupID: &group.ID,
			TaskID:  &task.ID,
			Message: fmt.Sprintf("%s posted \"%s\" in %s", actorName, task.Title, group.Name),
		})
	}
	n.Dispatch(rows)
}

func (n *Notifier) SubmissionReceived(actorID uuid.UUID, submission *models.Submission, task *models.Task, group *models.Group) {
	actorName := n.actorName(actorID)

	rows := make([]models.Notification, 0)
	for _, uid := range n.groupAdminIDs(group) {
		rows = append(rows, models.Notification{
			UserID:       uid,
			ActorID:      actorID,
			Type:         models.NotificationNewSubmission,
			GroupID:      &group.ID,
			TaskID:       &task.ID,
			SubmissionID: &submission.ID,
			Message:      fmt.Sprintf("%s submitted work for \"%s\"", actorName, task.Title),
		})
	}
	n.Dispatch(rows)
}

func (n *Notifier) SubmissionGraded(actorID uuid.UUID, submission *models.Submission, task *models.Task, score *models.Score) {
	actorName := n.actorName(actorID)

	n.Dispatch([]models.Notification{{
		UserID:       submission.StudentID,
		ActorID:      actorID,
		Type:         models.NotificationGraded,
		GroupID:      &task.GroupID,
		TaskID:       &task.ID,
		SubmissionID: &submission.ID,
		Message:      fmt.Sprintf("%s graded your work on \"%s\": %g/%g", actorName, task.Title, score.Value, task.MaxScore),
	}})
}

func (n *Notifier) MemberAdded(actorID, targetID uuid.UUID, group *models.Group) {
	n.Dispatch([]models.Notification{{
		UserID:  targetID,
		ActorID: actorID,
		Type:    models.NotificationMemberAdded,
		GroupID: &group.ID,
		Message: fmt.Sprintf("%s added you to \"%s\"", n.actorName(actorID), group.Name),
	}})
}

func (n *Notifier) MemberRemoved(actorID, targetID uuid.UUID, group *models.Group) {
	n.Dispatch([]models.Notification{{
		UserID:  targetID,
		ActorID: actorID,
		Type:    models.NotificationMemberRemoved,
		GroupID: &group.ID,
		Message: fmt.Sprintf("%s removed you from \"%s\"", n.actorName(actorID), group.Name),
	}})
}

func (n *Notifier) JoinRequested(actorID uuid.UUID, group *models.Group) {
	actorName := n.actorName(actorID)

	rows := make([]models.Notification, 0)
	for _, uid := range n.groupAdminIDs(group) {
		rows = append(rows, models.Notification{
			UserID:  uid,
			ActorID: actorID,
			Type:    models.NotificationJoinRequest,
			GroupID: &group.ID,
			Message: fmt.Sprintf("%s requested to join \"%s\"", actorName, group.Name),
		})
	}
	n.Dispatch(rows)
}

func (n *Notifier) JoinResolved(actorID, targetID uuid.UUID, group *models.Group, approved bool) {
	verb := "approved"
	if !approved {
		verb = "rejected"
	}
	n.Dispatch([]models.Notification{{
		UserID:  targetID,
		ActorID: actorID,
		Type:    models.NotificationRequestResolved,
		GroupID: &group.ID,
		Message: fmt.Sprintf("Your request to join \"%s\" was %s", group.Name, verb),
	}})
}

func (n *Notifier) actorName(userID uuid.UUID) string {
	var user models.User
	if err := n.DB.Select("first_name", "last_name").First(&user, "id = ?", userID).Error; err != nil {
		return "Someone"
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// groupMemberIDs returns every member plus the owner, deduplicated.
func (n *Notifier) groupMemberIDs(group *models.Group) []uuid.UUID {
	var memberships []models.GroupMembership
	n.DB.Select("user_id").Where("group_id = ?", group.ID).Find(&memberships)

	seen := map[uuid.UUID]bool{group.OwnerID: true}
	ids := []uuid.UUID{group.OwnerID}
	for _, m := range memberships {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		ids = append(ids, m.UserID)
	}
	return ids
}

// groupAdminIDs returns the owner plus every admin-or-above membership,
// deduplicated.
func (n *Notifier) groupAdminIDs(group *models.Group) []uuid.UUID {
	var memberships []models.GroupMembership
	n.DB.Select("user_id").
		Where("group_id = ? AND role IN ?", group.ID, []models.GroupRole{models.GroupRoleAdmin, models.GroupRoleTopAdmin}).
		Find(&memberships)

	seen := map[uuid.UUID]bool{group.OwnerID: true}
	ids := []uuid.UUID{group.OwnerID}
	for _, m := range memberships {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		ids = append(ids, m.UserID)
	}
	return ids
}
