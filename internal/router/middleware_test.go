package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dujiao-next/payin/internal/authz"
	"github.com/dujiao-next/payin/internal/cache"
	"github.com/dujiao-next/payin/internal/constants"
	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

type fakeTokenResolver struct {
	claims *service.JWTClaims
	state  *cache.APIClientAuthState
}

func (f *fakeTokenResolver) ParseJWT(tokenString string) (*service.JWTClaims, error) {
	if tokenString != "good-token" || f.claims == nil {
		return nil, errors.New("bad token")
	}
	return f.claims, nil
}

func (f *fakeTokenResolver) ResolveClientState(_ context.Context, clientID uint) (*cache.APIClientAuthState, error) {
	if f.state == nil || f.state.ClientID != clientID {
		return nil, service.ErrInvalidToken
	}
	return f.state, nil
}

func decodeStatusCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp.StatusCode
}

func TestJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	resolver := &fakeTokenResolver{
		claims: &service.JWTClaims{ClientID: 9, ClientKey: "shop", Role: constants.RolePayerClient},
		state: &cache.APIClientAuthState{
			ClientID:  9,
			ClientKey: "shop",
			Role:      constants.RolePayerClient,
			PayerID:   "payer-9",
			Status:    constants.APIClientStatusActive,
		},
	}
	r := gin.New()
	r.Use(JWTAuthMiddleware(resolver))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status_code": 0,
			"client_id":   c.GetUint(handlershared.ContextClientID),
			"payer_id":    c.GetString(handlershared.ContextPayerID),
		})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: 401},
		{name: "wrong scheme", header: "Basic abc", want: 401},
		{name: "bad token", header: "Bearer nope", want: 401},
		{name: "valid token", header: "Bearer good-token", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if got := decodeStatusCode(t, w); got != tc.want {
				t.Fatalf("status_code want %d got %d", tc.want, got)
			}
			if tc.want == 0 && !strings.Contains(w.Body.String(), `"payer_id":"payer-9"`) {
				t.Fatalf("payer id should come from auth state, got %s", w.Body.String())
			}
		})
	}

	resolver.state.Status = constants.APIClientStatusDisabled
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	if got := decodeStatusCode(t, w); got != 401 {
		t.Fatalf("disabled client want 401 got %d", got)
	}
}

func TestJWTAuthMiddlewareWithoutResolver(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(JWTAuthMiddleware(nil))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if got := decodeStatusCode(t, w); got != 401 {
		t.Fatalf("status_code want 401 got %d", got)
	}
}

func TestClientRBACMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	if err := authzService.SetClientRoles(21, []string{constants.RolePayerClient}); err != nil {
		t.Fatalf("set payer roles failed: %v", err)
	}
	if err := authzService.SetClientRoles(22, []string{constants.RoleOperator}); err != nil {
		t.Fatalf("set operator roles failed: %v", err)
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		var clientID uint
		_, _ = fmt.Sscanf(c.GetHeader("X-Test-Client"), "%d", &clientID)
		if clientID > 0 {
			c.Set(handlershared.ContextClientID, clientID)
		}
		c.Next()
	})
	r.Use(ClientRBACMiddleware(authzService))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status_code": 0}) }
	r.POST("/api/v1/cart-payments", ok)
	r.POST("/api/v1/admin/cart-payments/:id/capture", ok)

	cases := []struct {
		name   string
		client string
		path   string
		want   int
	}{
		{name: "anonymous", client: "", path: "/api/v1/cart-payments", want: 401},
		{name: "payer create", client: "21", path: "/api/v1/cart-payments", want: 0},
		{name: "payer capture", client: "21", path: "/api/v1/admin/cart-payments/abc/capture", want: 403},
		{name: "operator capture", client: "22", path: "/api/v1/admin/cart-payments/abc/capture", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.client != "" {
				req.Header.Set("X-Test-Client", tc.client)
			}
			r.ServeHTTP(w, req)
			if got := decodeStatusCode(t, w); got != tc.want {
				t.Fatalf("status_code want %d got %d", tc.want, got)
			}
		})
	}
}

func TestDerivePermissionModule(t *testing.T) {
	cases := map[string]string{
		"/cart-payments/:id":               "cart-payments",
		"/admin/cart-payments/:id/capture": "admin_cart-payments",
		"/admin":                           "admin",
		"":                                 "system",
	}
	for object, want := range cases {
		if got := derivePermissionModule(object); got != want {
			t.Fatalf("%q: want %s got %s", object, want, got)
		}
	}
}
