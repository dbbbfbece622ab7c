package services

import (
	"context"
	"testing"
	"time"

	"github.com/classhub/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openRolesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.Group{}, &models.GroupMembership{}); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "x", FirstName: "Test", LastName: "User", Role: models.UserRoleUser}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	return user
}

func TestResolveOwnerWinsOverMembership(t *testing.T) {
	db := openRolesTestDB(t)
	svc := NewRoleService(db)

	owner := seedUser(t, db, "owner@example.com")
	group := &models.Group{Name: "G", OwnerID: owner.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group: %v", err)
	}

	// Even with a stale student membership row, ownership resolves top_admin.
	membership := &models.GroupMembership{UserID: owner.ID, GroupID: group.ID, Role: models.GroupRoleStudent, JoinedAt: time.Now()}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating membership: %v", err)
	}

	grant, err := svc.Resolve(context.Background(), owner.ID, group.ID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if grant.Role != models.GroupRoleTopAdmin {
		t.Fatalf("expected top_admin, got %s", grant.Role)
	}
}

func TestResolveMembershipRole(t *testing.T) {
	db := openRolesTestDB(t)
	svc := NewRoleService(db)

	owner := seedUser(t, db, "owner@example.com")
	admin := seedUser(t, db, "admin@example.com")
	student := seedUser(t, db, "student@example.com")
	outsider := seedUser(t, db, "outsider@example.com")

	group := &models.Group{Name: "G", OwnerID: owner.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group: %v", err)
	}
	db.Create(&models.GroupMembership{UserID: admin.ID, GroupID: group.ID, Role: models.GroupRoleAdmin, JoinedAt: time.Now()})
	db.Create(&models.GroupMembership{UserID: student.ID, GroupID: group.ID, Role: models.GroupRoleStudent, JoinedAt: time.Now()})

	cases := []struct {
		name     string
		userID   uuid.UUID
		expected models.GroupRole
	}{
		{"admin membership", admin.ID, models.GroupRoleAdmin},
		{"student membership", student.ID, models.GroupRoleStudent},
		{"no membership", outsider.ID, models.GroupRoleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grant, err := svc.Resolve(context.Background(), tc.userID, group.ID)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if grant.Role != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, grant.Role)
			}
		})
	}
}

func TestResolveMissingGroup(t *testing.T) {
	db := openRolesTestDB(t)
	svc := NewRoleService(db)
	user := seedUser(t, db, "user@example.com")

	_, err := svc.Resolve(context.Background(), user.ID, uuid.New())
	if err != gorm.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func grantWith(role models.GroupRole) Grant {
	return Grant{UserID: uuid.New(), GroupID: uuid.New(), Role: role}
}

func TestRemovalPolicy(t *testing.T) {
	cases := []struct {
		name    string
		actor   models.GroupRole
		target  models.GroupRole
		allowed bool
	}{
		{"student removes student", models.GroupRoleStudent, models.GroupRoleStudent, false},
		{"admin removes student", models.GroupRoleAdmin, models.GroupRoleStudent, true},
		{"admin removes admin", models.GroupRoleAdmin, models.GroupRoleAdmin, false},
		{"top_admin removes admin", models.GroupRoleTopAdmin, models.GroupRoleAdmin, true},
		{"top_admin removes student", models.GroupRoleTopAdmin, models.GroupRoleStudent, true},
		{"outsider removes student", models.GroupRoleNone, models.GroupRoleStudent, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRemoveMember(grantWith(tc.actor), tc.target); got != tc.allowed {
				t.Fatalf("expected %v, got %v", tc.allowed, got)
			}
		})
	}
}

func TestRoleChangePolicyStricterThanRemoval(t *testing.T) {
	if CanChangeMemberRole(grantWith(models.GroupRoleAdmin)) {
		t.Fatal("admins must not change roles")
	}
	if !CanChangeMemberRole(grantWith(models.GroupRoleTopAdmin)) {
		t.Fatal("top admin must be able to change roles")
	}
}

func TestTaskAndGradingPolicies(t *testing.T) {
	if CanManageTasks(grantWith(models.GroupRoleStudent)) {
		t.Fatal("students must not manage tasks")
	}
	if !CanManageTasks(grantWith(models.GroupRoleAdmin)) {
		t.Fatal("admins must manage tasks")
	}
	if !CanSubmit(grantWith(models.GroupRoleStudent)) {
		t.Fatal("students must be able to submit")
	}
	if CanSubmit(grantWith(models.GroupRoleNone)) {
		t.Fatal("non-members must not submit")
	}
	if CanGrade(grantWith(models.GroupRoleStudent)) {
		t.Fatal("students must not grade")
	}
	if !CanGrade(grantWith(models.GroupRoleTopAdmin)) {
		t.Fatal("top admin must be able to grade")
	}
}

func TestPeerVisibilityPolicy(t *testing.T) {
	if CanViewPeerSubmissions(grantWith(models.GroupRoleStudent), models.SubmissionsPrivate) {
		t.Fatal("students must not see peers on private tasks")
	}
	if !CanViewPeerSubmissions(grantWith(models.GroupRoleStudent), models.SubmissionsPublic) {
		t.Fatal("students must see peers on public tasks")
	}
	if !CanViewPeerSubmissions(grantWith(models.GroupRoleAdmin), models.SubmissionsPrivate) {
		t.Fatal("admins must always see submissions")
	}
}
