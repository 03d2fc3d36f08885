package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/backend/internal/board"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/ordering"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/internal/utils"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	queue  *services.SyncQueue
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("routes-test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	require.NoError(t, models.SeedDefaults(db))
	services.InitSystemLogger(db)

	queue := services.NewSyncQueue()
	queue.SetProcessor(services.NewEventProcessor(db, nil).Process)

	cfg := config.DefaultConfig()
	svc := &appServices{
		db:          db,
		taskQueue:   queue,
		authService: services.NewAuthService(db, &cfg.JWT),
		authLimiter: middleware.NewRateLimiter(1000, 1000),
	}
	t.Cleanup(func() {
		svc.shutdown()
		services.InitSystemLogger(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	r := gin.New()
	registerRoutes(r, svc)
	return &testServer{t: t, router: r, queue: queue, db: db}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) signUp(email string) string {
	s.t.Helper()
	w, _ := s.do("POST", "/api/auth/register", "", gin.H{"email": email, "password": "correct-horse"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w, env := s.do("POST", "/api/auth/login", "", gin.H{"email": email, "password": "correct-horse"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(s.t, login.Token)
	return login.Token
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestRoutes_BoardScenario(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	member := s.signUp("member@example.com")
	outsider := s.signUp("outsider@example.com")

	w, env := s.do("POST", "/api/projects", owner, gin.H{"name": "Launch"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	project := decode[models.Project](t, env)

	w, _ = s.do("POST", "/api/projects/"+project.ID+"/members", owner, gin.H{"email": "member@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	ids := map[string]string{}
	for i, title := range []string{"A", "B", "C"} {
		w, env = s.do("POST", "/api/projects/"+project.ID+"/tasks", member, gin.H{"title": title})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		task := decode[models.Task](t, env)
		assert.Equal(t, ordering.Todo, task.Status)
		assert.Equal(t, i, task.Order)
		ids[title] = task.ID
	}
	taskPath := func(title string) string { return "/api/projects/" + project.ID + "/tasks/" + ids[title] }

	w, env = s.do("PATCH", taskPath("C"), member, gin.H{"status": "TODO", "order": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[models.Task](t, env).Order)

	w, _ = s.do("PATCH", taskPath("A"), member, gin.H{"status": "DONE", "order": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do("DELETE", taskPath("B"), member, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())

	w, env = s.do("GET", "/api/projects/"+project.ID+"/board", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	b := decode[board.Board](t, env)
	todo := b.Column(ordering.Todo).Cards
	require.Len(t, todo, 1)
	assert.Equal(t, "C", todo[0].Title)
	done := b.Column(ordering.Done).Cards
	require.Len(t, done, 1)
	assert.Equal(t, "A", done[0].Title)
	assert.Equal(t, 0, done[0].Order)

	// errors map to distinct statuses
	w, _ = s.do("PATCH", taskPath("C"), outsider, gin.H{"title": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do("PATCH", "/api/projects/"+project.ID+"/tasks/missing", member, gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do("PATCH", taskPath("C"), member, gin.H{"status": "DONE", "order": 0, "title": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do("PATCH", taskPath("C"), member, gin.H{"status": "TODO", "order": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do("POST", "/api/projects/"+project.ID+"/tasks", member, gin.H{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do("DELETE", taskPath("C"), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.queue.Wait()

	w, env = s.do("GET", "/api/projects/"+project.ID+"/activity?page_size=50", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	activity := decode[services.SystemLogListResponse](t, env)
	actions := map[string]int{}
	for _, item := range activity.Items {
		if item.Module == "task" {
			actions[item.Action]++
		}
	}
	assert.Equal(t, map[string]int{"created": 3, "moved": 2, "deleted": 1}, actions)

	w, env = s.do("GET", "/api/analytics", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[[]services.ProjectAnalytics](t, env)
	require.Len(t, summary, 1)
	assert.Equal(t, int64(1), summary[0].TaskCounts[ordering.Todo])
	assert.Equal(t, int64(1), summary[0].TaskCounts[ordering.Done])
}

func TestRoutes_ProjectLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("owner@example.com")
	member := s.signUp("member@example.com")

	_, env := s.do("POST", "/api/projects", owner, gin.H{"name": "Launch"})
	project := decode[models.Project](t, env)
	_, env = s.do("POST", "/api/projects/"+project.ID+"/members", owner, gin.H{"email": "member@example.com"})
	membership := decode[models.Membership](t, env)

	w, _ := s.do("POST", "/api/projects/"+project.ID+"/members", owner, gin.H{"email": "member@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do("PATCH", "/api/projects/"+project.ID, member, gin.H{"name": "Mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, env = s.do("PATCH", "/api/projects/"+project.ID, owner, gin.H{"name": "Relaunch"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Relaunch", decode[models.Project](t, env).Name)

	w, env = s.do("GET", "/api/projects", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]services.ProjectSummary](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].MemberCount)

	// a member may leave
	w, _ = s.do("DELETE", "/api/projects/"+project.ID+"/members/"+membership.ID, member, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do("GET", "/api/projects/"+project.ID, member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do("DELETE", "/api/projects/"+project.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do("GET", "/api/projects/"+project.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_AuthFlow(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do("POST", "/api/auth/register", "", gin.H{"email": "not-an-email", "password": "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.signUp("ana@example.com")
	w, _ = s.do("POST", "/api/auth/register", "", gin.H{"email": "ana@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do("POST", "/api/auth/login", "", gin.H{"email": "ana@example.com", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do("POST", "/api/auth/login", "", gin.H{"email": "ana@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code)
	var tokens struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))

	w, env = s.do("GET", "/api/auth/me", tokens.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", decode[models.User](t, env).Email)

	w, env = s.do("POST", "/api/auth/refresh", "", gin.H{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	w, _ = s.do("POST", "/api/auth/refresh", "", gin.H{"refresh_token": tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a rotated token cannot be reused")

	w, _ = s.do("POST", "/api/auth/logout", tokens.Token, gin.H{"refresh_token": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do("POST", "/api/auth/refresh", "", gin.H{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_Health(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do("GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Components["database"])
	assert.Equal(t, "sync", body.Components["queue_mode"])
	assert.Equal(t, "disabled", body.Components["cache"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}
