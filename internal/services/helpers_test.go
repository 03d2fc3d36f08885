package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/ordering"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errInjected = errors.New("injected storage failure")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db       *gorm.DB
	owner    *models.User
	member   *models.User
	outsider *models.User
	project  *models.Project

	ownerMembership  *models.Membership
	memberMembership *models.Membership
}

// newFixture creates a project owned by owner with member invited and
// outsider registered but not a member.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{db: db}
	f.owner = createUser(t, db, "owner@example.com")
	f.member = createUser(t, db, "member@example.com")
	f.outsider = createUser(t, db, "outsider@example.com")

	f.project = &models.Project{Name: "Launch", OwnerID: f.owner.ID}
	require.NoError(t, db.Create(f.project).Error)

	f.ownerMembership = &models.Membership{ProjectID: f.project.ID, UserID: f.owner.ID, Role: models.RoleOwner}
	require.NoError(t, db.Create(f.ownerMembership).Error)
	f.memberMembership = &models.Membership{ProjectID: f.project.ID, UserID: f.member.ID, Role: models.RoleMember}
	require.NoError(t, db.Create(f.memberMembership).Error)

	return f
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Password: "not-a-real-hash"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// columnTitles returns task titles per column, in order.
func columnTitles(t *testing.T, db *gorm.DB, projectID string) map[ordering.Status][]string {
	t.Helper()
	var tasks []models.Task
	require.NoError(t, db.Where("project_id = ?", projectID).Order("position").Find(&tasks).Error)

	out := make(map[ordering.Status][]string)
	for _, task := range tasks {
		out[task.Status] = append(out[task.Status], task.Title)
	}
	return out
}

func requireContiguous(t *testing.T, db *gorm.DB, projectID string) {
	t.Helper()
	entries, err := loadEntries(db, projectID)
	require.NoError(t, err)
	require.Empty(t, ordering.Verify(entries), "columns must be numbered 0..n-1")
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var appErr *response.AppError
	require.True(t, errors.As(err, &appErr), "expected *response.AppError, got %T: %v", err, err)
	require.Equal(t, status, appErr.HTTPStatus, appErr.Message)
}

// failUpdates makes every update whose column map satisfies match fail.
func failUpdates(t *testing.T, db *gorm.DB, match func(map[string]interface{}) bool) {
	t.Helper()
	name := "test:fail_updates_" + uuid.NewString()
	err := db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		if cols, ok := tx.Statement.Dest.(map[string]interface{}); ok && match(cols) {
			_ = tx.AddError(errInjected)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Update().Remove(name) })
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*TaskEvent
	err    error
}

func (p *recordingPublisher) Enqueue(event *TaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
