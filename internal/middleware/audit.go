package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/services"
)

const auditBodyLimit = 2000

// AuditLog records authenticated write requests to system_logs once the
// handler has run. Request bodies are truncated and their secrets masked.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if !isWrite(method) {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > auditBodyLimit {
				bodySnippet = bodySnippet[:auditBodyLimit] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		userID := GetUserID(c)
		if userID == "" {
			return
		}
		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		entry := services.LogEntry{
			UserID:    &userID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra: map[string]interface{}{
				"method":     method,
				"path":       c.Request.URL.Path,
				"status":     status,
				"body":       bodySnippet,
				"request_id": GetRequestID(c),
				"audit":      true,
			},
		}
		if projectID := c.Param("id"); projectID != "" && strings.HasPrefix(c.FullPath(), "/api/projects/:id") {
			entry.ProjectID = &projectID
		}

		message := formatAuditMessage(method, c.Request.URL.Path, status)
		if status >= http.StatusBadRequest {
			services.LogWarning(module, action, message, entry)
			return
		}
		services.LogInfo(module, action, message, entry)
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// parseRouteInfo names the resource a route acts on, which is its last
// static segment: "/api/projects/:id/tasks/:taskId" + PATCH gives
// ("Tasks", "Update").
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/")

	module = "Unknown"
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg != "" && !strings.HasPrefix(seg, ":") && !strings.HasPrefix(seg, "*") {
			module = capitalize(seg)
			break
		}
	}

	switch method {
	case http.MethodPost:
		action = "Create"
	case http.MethodPut, http.MethodPatch:
		action = "Update"
	case http.MethodDelete:
		action = "Delete"
	default:
		action = method
	}
	return module, action
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatAuditMessage(method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	if status >= 200 && status < 300 {
		b.WriteString(" OK")
	} else {
		b.WriteString(" Failed")
	}
	return b.String()
}

var sensitiveKeys = []string{"password", "refresh_token", "token", "secret"}

// maskSensitiveFields replaces the string values of sensitive JSON keys.
func maskSensitiveFields(body string) string {
	for _, key := range sensitiveKeys {
		body = maskJSONValue(body, key)
	}
	return body
}

// maskJSONValue masks every quoted value of key. Non-string values are left
// alone.
func maskJSONValue(body, key string) string {
	needle := "\"" + key + "\""
	from := 0
	for {
		idx := strings.Index(strings.ToLower(body[from:]), needle)
		if idx == -1 {
			return body
		}
		idx += from + len(needle)

		colon := strings.Index(body[idx:], ":")
		if colon == -1 {
			return body
		}
		valueStart := idx + colon + 1
		for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
			valueStart++
		}
		if valueStart >= len(body) || body[valueStart] != '"' {
			from = idx
			continue
		}
		endQuote := strings.Index(body[valueStart+1:], "\"")
		if endQuote == -1 {
			return body
		}
		body = body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
		from = valueStart + 1 + len("***") + 1
	}
}
