package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/services"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, gormlogger.Silent)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	services.InitSystemLogger(db)
	t.Cleanup(func() {
		services.InitSystemLogger(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestParseRouteInfo(t *testing.T) {
	tests := []struct {
		path, method   string
		module, action string
	}{
		{"/api/projects", "POST", "Projects", "Create"},
		{"/api/projects/:id", "PATCH", "Projects", "Update"},
		{"/api/projects/:id/tasks/:taskId", "PATCH", "Tasks", "Update"},
		{"/api/projects/:id/members/:membershipId", "DELETE", "Members", "Delete"},
		{"/api/auth/logout", "POST", "Logout", "Create"},
		{"", "PUT", "Unknown", "Update"},
	}

	for _, tt := range tests {
		module, action := parseRouteInfo(tt.path, tt.method)
		if module != tt.module || action != tt.action {
			t.Errorf("parseRouteInfo(%q, %q) = (%q, %q), expected (%q, %q)",
				tt.path, tt.method, module, action, tt.module, tt.action)
		}
	}
}

func TestMaskSensitiveFields(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"password", `{"email":"a@b.c","password":"hunter22"}`, `{"email":"a@b.c","password":"***"}`},
		{"refresh token", `{"refresh_token": "abc"}`, `{"refresh_token": "***"}`},
		{"repeated key", `[{"token":"a"},{"token":"b"}]`, `[{"token":"***"},{"token":"***"}]`},
		{"non-string value", `{"secret":null,"title":"x"}`, `{"secret":null,"title":"x"}`},
		{"nothing to mask", `{"title":"Write docs"}`, `{"title":"Write docs"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSensitiveFields(tt.in); got != tt.want {
				t.Errorf("maskSensitiveFields(%s) = %s, expected %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAuditLog_RecordsAuthenticatedWrites(t *testing.T) {
	db := newAuditDB(t)

	router := gin.New()
	router.Use(RequestID())
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserID, "user-1")
		c.Next()
	})
	router.Use(AuditLog())
	router.PATCH("/api/projects/:id/tasks/:taskId", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/api/projects/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PATCH", "/api/projects/p1/tasks/t1", strings.NewReader(`{"title":"x","token":"secret"}`))
	router.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/projects/p1", nil)
	router.ServeHTTP(w, req)

	var logs []models.SystemLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d audit rows, expected 1 (reads are not audited)", len(logs))
	}

	log := logs[0]
	if log.Module != "Tasks" || log.Action != "Update" || log.Level != "info" {
		t.Errorf("row = %s/%s/%s", log.Level, log.Module, log.Action)
	}
	if log.ProjectID == nil || *log.ProjectID != "p1" {
		t.Errorf("ProjectID = %v, expected p1", log.ProjectID)
	}
	if log.UserID == nil || *log.UserID != "user-1" {
		t.Errorf("UserID = %v, expected user-1", log.UserID)
	}

	var extra map[string]interface{}
	if err := json.Unmarshal([]byte(log.Extra), &extra); err != nil {
		t.Fatalf("extra is not JSON: %v", err)
	}
	if body, _ := extra["body"].(string); strings.Contains(body, "secret") {
		t.Errorf("body %q should be masked", body)
	}
	if extra["request_id"] == "" {
		t.Error("extra should carry the request id")
	}
}

func TestAuditLog_SkipsAnonymousAndFlagsFailures(t *testing.T) {
	db := newAuditDB(t)

	router := gin.New()
	router.Use(AuditLog())
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})
	authed := router.Group("/api", func(c *gin.Context) {
		c.Set(ContextUserID, "user-1")
		c.Next()
	})
	authed.DELETE("/projects/:id", func(c *gin.Context) {
		c.Status(http.StatusForbidden)
	})

	for _, r := range []struct{ method, path string }{
		{"POST", "/api/auth/login"},
		{"DELETE", "/api/projects/p1"},
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(r.method, r.path, strings.NewReader(`{"password":"pw"}`))
		router.ServeHTTP(w, req)
	}

	var logs []models.SystemLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d audit rows, expected 1", len(logs))
	}
	if logs[0].Level != "warning" || logs[0].Module != "Projects" || logs[0].Action != "Delete" {
		t.Errorf("row = %s/%s/%s", logs[0].Level, logs[0].Module, logs[0].Action)
	}
}
