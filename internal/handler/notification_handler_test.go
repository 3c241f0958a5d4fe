package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/notifier"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type capturePush struct {
	sent []notifier.Notification
}

func (c *capturePush) Send(_ context.Context, n notifier.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func testToken(t *testing.T, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

func setupNotificationRouter(push notifier.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.InitAuth("test-secret")
	router := gin.New()
	NewNotificationHandler(push, zap.NewNop()).RegisterRoutes(router.Group(""))
	return router
}

func post(router *gin.Engine, token, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestForwardNotification(t *testing.T) {
	push := &capturePush{}
	router := setupNotificationRouter(push)
	token := testToken(t, model.RoleEmployee)

	w := post(router, token, "/api/notifications/new-request",
		`{"title":"New request","body":"3 items requested"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if len(push.sent) != 1 || push.sent[0].Kind != notifier.KindNewRequest {
		t.Errorf("forwarded = %+v, want one new-request notification", push.sent)
	}
}

func TestForwardRejectsUnknownKind(t *testing.T) {
	push := &capturePush{}
	router := setupNotificationRouter(push)
	token := testToken(t, model.RoleEmployee)

	w := post(router, token, "/api/notifications/password-reset",
		`{"title":"x","body":"y"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(push.sent) != 0 {
		t.Error("unknown kind must not be forwarded")
	}
}

func TestForwardValidatesRequiredFields(t *testing.T) {
	push := &capturePush{}
	router := setupNotificationRouter(push)
	token := testToken(t, model.RoleEmployee)

	// Missing body text
	w := post(router, token, "/api/notifications/new-request", `{"title":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing body: status = %d, want 400", w.Code)
	}

	// Device-directed kind without a token
	w = post(router, token, "/api/notifications/request-accepted",
		`{"title":"x","body":"y"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing token: status = %d, want 400", w.Code)
	}

	if len(push.sent) != 0 {
		t.Error("invalid payloads must not be forwarded")
	}
}

func TestForwardRequiresAuth(t *testing.T) {
	push := &capturePush{}
	router := setupNotificationRouter(push)

	w := post(router, "", "/api/notifications/new-request",
		`{"title":"x","body":"y"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
