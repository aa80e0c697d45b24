package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/payin/internal/config"
	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthServiceTest(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.APIClient{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{JWT: config.JWTConfig{SecretKey: "test-secret-key-for-payin", ExpireHours: 2}}
	return NewAuthService(cfg, repository.NewAPIClientRepository(db)), db
}

func TestAuthServiceIssueAndParseToken(t *testing.T) {
	svc, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	client, err := svc.CreateAPIClient(ctx, CreateAPIClientInput{
		ClientKey: "shop-1",
		Secret:    "s3cret",
		Role:      constants.RolePayerClient,
		PayerID:   "payer-1",
	})
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	if client.SecretHash == "s3cret" {
		t.Fatalf("secret must be hashed")
	}

	issued, token, expiresAt, err := svc.IssueToken(ctx, "shop-1", "s3cret")
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if issued.LastLoginAt == nil {
		t.Fatalf("last login should be touched")
	}
	if time.Until(expiresAt) <= time.Hour {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.ClientID != client.ID || claims.Role != constants.RolePayerClient || claims.PayerID != "payer-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	state, err := svc.ResolveClientState(ctx, client.ID)
	if err != nil {
		t.Fatalf("resolve state failed: %v", err)
	}
	if state.Status != constants.APIClientStatusActive || state.PayerID != "payer-1" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestAuthServiceRejectsBadCredentials(t *testing.T) {
	svc, db := setupAuthServiceTest(t)
	ctx := context.Background()
	client, err := svc.CreateAPIClient(ctx, CreateAPIClientInput{ClientKey: "ops", Secret: "pw", Role: constants.RoleOperator})
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}

	if _, _, _, err := svc.IssueToken(ctx, "ops", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong secret want ErrInvalidCredentials got %v", err)
	}
	if _, _, _, err := svc.IssueToken(ctx, "nobody", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown client want ErrInvalidCredentials got %v", err)
	}

	if err := db.Model(&models.APIClient{}).Where("id = ?", client.ID).Update("status", constants.APIClientStatusDisabled).Error; err != nil {
		t.Fatalf("disable client failed: %v", err)
	}
	if _, _, _, err := svc.IssueToken(ctx, "ops", "pw"); !errors.Is(err, ErrClientDisabled) {
		t.Fatalf("disabled client want ErrClientDisabled got %v", err)
	}

	if _, err := svc.CreateAPIClient(ctx, CreateAPIClientInput{ClientKey: "ops", Secret: "pw", Role: constants.RoleOperator}); !errors.Is(err, ErrClientKeyExists) {
		t.Fatalf("duplicate key want ErrClientKeyExists got %v", err)
	}
	if _, err := svc.CreateAPIClient(ctx, CreateAPIClientInput{ClientKey: "x", Secret: "pw", Role: "root"}); !errors.Is(err, ErrClientInvalid) {
		t.Fatalf("bad role want ErrClientInvalid got %v", err)
	}
}

func TestAuthServiceParseJWTRejectsForeignSignature(t *testing.T) {
	svc, _ := setupAuthServiceTest(t)
	other := NewAuthService(&config.Config{JWT: config.JWTConfig{SecretKey: "another-secret", ExpireHours: 1}}, nil)
	token, _, err := other.GenerateJWT(&models.APIClient{ID: 9, ClientKey: "x", Role: constants.RoleOperator})
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := svc.ParseJWT(token); err == nil {
		t.Fatalf("foreign signature should be rejected")
	}
}

func TestAuthServiceClientManagement(t *testing.T) {
	svc, _ := setupAuthServiceTest(t)
	ctx := context.Background()
	payer, err := svc.CreateAPIClient(ctx, CreateAPIClientInput{ClientKey: "shop-2", Secret: "pw", Role: constants.RolePayerClient, PayerID: "payer-2"})
	if err != nil {
		t.Fatalf("create payer client failed: %v", err)
	}
	if _, err := svc.CreateAPIClient(ctx, CreateAPIClientInput{ClientKey: "root", Secret: "pw", Role: constants.RoleAdmin}); err != nil {
		t.Fatalf("create admin client failed: %v", err)
	}

	clients, total, err := svc.ListAPIClients(ctx, repository.APIClientListFilter{Role: constants.RolePayerClient, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list clients failed: %v", err)
	}
	if total != 1 || len(clients) != 1 || clients[0].ClientKey != "shop-2" {
		t.Fatalf("unexpected list total=%d clients=%+v", total, clients)
	}

	disabled, err := svc.SetClientStatus(ctx, payer.ID, " Disabled ")
	if err != nil {
		t.Fatalf("disable client failed: %v", err)
	}
	if disabled.Status != constants.APIClientStatusDisabled {
		t.Fatalf("status want disabled got %s", disabled.Status)
	}
	state, err := svc.ResolveClientState(ctx, payer.ID)
	if err != nil {
		t.Fatalf("resolve state failed: %v", err)
	}
	if state.Status != constants.APIClientStatusDisabled {
		t.Fatalf("state should reflect disabled status, got %s", state.Status)
	}
	if _, _, _, err := svc.IssueToken(ctx, "shop-2", "pw"); !errors.Is(err, ErrClientDisabled) {
		t.Fatalf("disabled client want ErrClientDisabled got %v", err)
	}

	if _, err := svc.SetClientStatus(ctx, payer.ID, "paused"); !errors.Is(err, ErrClientInvalid) {
		t.Fatalf("bad status want ErrClientInvalid got %v", err)
	}
	if _, err := svc.SetClientStatus(ctx, 999, constants.APIClientStatusActive); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("missing client want ErrClientNotFound got %v", err)
	}

	promoted, err := svc.SetClientPrimaryRole(ctx, payer.ID, constants.RoleOperator)
	if err != nil {
		t.Fatalf("set primary role failed: %v", err)
	}
	if promoted.Role != constants.RoleOperator {
		t.Fatalf("role want operator got %s", promoted.Role)
	}
	if _, err := svc.GetAPIClient(ctx, 999); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("missing client want ErrClientNotFound got %v", err)
	}
}
