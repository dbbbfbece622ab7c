package handlers

import (
	"net/http"
	"testing"

	"github.com/classhub/backend/internal/models"
)

func TestCreateTaskDefaults(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/tasks", map[string]any{
		"title": "Integrals worksheet",
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusCreated)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if data["maxScore"].(float64) != models.DefaultMaxScore {
		t.Fatalf("expected default max score %v, got %v", models.DefaultMaxScore, data["maxScore"])
	}
	if data["submissionsVisibility"] != string(models.SubmissionsPrivate) {
		t.Fatalf("expected private visibility, got %v", data["submissionsVisibility"])
	}
	if data["creatorID"] != owner.ID.String() {
		t.Fatalf("expected creator %s, got %v", owner.ID, data["creatorID"])
	}
}

func TestCreateTaskStudentForbidden(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	student, studentToken := createTestUser(t, env.db, "student@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")
	addTestMember(t, env.db, group, student, models.GroupRoleStudent)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/tasks", map[string]any{
		"title": "Sneaky task",
	}, authHeaders(studentToken))
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "insufficient permissions")
}

func TestCreateTaskAdminAllowed(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	admin, adminToken := createTestUser(t, env.db, "admin@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")
	addTestMember(t, env.db, group, admin, models.GroupRoleAdmin)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/tasks", map[string]any{
		"title":    "Quiz",
		"maxScore": 100.0,
	}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusCreated)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if data["maxScore"].(float64) != 100 {
		t.Fatalf("expected max score 100, got %v", data["maxScore"])
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/tasks", map[string]any{
		"title": "",
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "title is required")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/tasks", map[string]any{
		"title":    "Bad score",
		"maxScore": -5.0,
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "maxScore must be positive")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/tasks", map[string]any{
		"title":                 "Bad visibility",
		"submissionsVisibility": "everyone",
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "invalid submissions visibility")
}

func TestListTasksMemberOnly(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	_, outsiderToken := createTestUser(t, env.db, "outsider@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")
	createTestTask(t, env.db, group, owner, "First")
	createTestTask(t, env.db, group, owner, "Second")

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String()+"/tasks", nil, authHeaders(outsiderToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String()+"/tasks", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	tasks := decodeJSONMap(t, resp)["data"].([]any)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")
	task := createTestTask(t, env.db, group, owner, "Old title")

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/tasks/"+task.ID.String(), map[string]any{
		"title":                 "New title",
		"submissionsVisibility": "public",
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if data["title"] != "New title" {
		t.Fatalf("expected updated title, got %v", data["title"])
	}
	if data["submissionsVisibility"] != string(models.SubmissionsPublic) {
		t.Fatalf("expected public visibility, got %v", data["submissionsVisibility"])
	}
	if data["maxScore"].(float64) != models.DefaultMaxScore {
		t.Fatalf("expected max score untouched, got %v", data["maxScore"])
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	student, studentToken := createTestUser(t, env.db, "student@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner.ID.String(), "Calculus")
	addTestMember(t, env.db, group, student, models.GroupRoleStudent)
	task := createTestTask(t, env.db, group, owner, "Doomed task")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/tasks/"+task.ID.String()+"/submissions", map[string]any{
		"content": "my answer",
	}, authHeaders(studentToken))
	assertStatus(t, resp, http.StatusOK)
	submissionID := decodeJSONMap(t, resp)["data"].(map[string]any)["id"].(string)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/submissions/"+submissionID+"/score", map[string]any{
		"value": 7.0,
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodDelete, "/api/tasks/"+task.ID.String(), nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	var count int64
	env.db.Model(&models.Submission{}).Where("task_id = ?", task.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected submissions deleted with the task, found %d", count)
	}
	env.db.Model(&models.Score{}).Where("submission_id = ?", submissionID).Count(&count)
	if count != 0 {
		t.Fatalf("expected scores deleted with the task, found %d", count)
	}
}
