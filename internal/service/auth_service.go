package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/cache"
	"github.com/dujiao-next/payin/internal/config"
	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrClientDisabled     = errors.New("api client disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrClientKeyExists    = errors.New("client key already exists")
	ErrClientInvalid      = errors.New("api client invalid")
	ErrClientNotFound     = errors.New("api client not found")
)

// AuthService 接入方认证服务
type AuthService struct {
	cfg        *config.Config
	clientRepo repository.APIClientRepository
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg *config.Config, clientRepo repository.APIClientRepository) *AuthService {
	return &AuthService{
		cfg:        cfg,
		clientRepo: clientRepo,
	}
}

// HashSecret 使用 bcrypt 加密接入方密钥
func (s *AuthService) HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret 验证接入方密钥
func (s *AuthService) VerifySecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}

// JWTClaims JWT 声明
type JWTClaims struct {
	ClientID  uint   `json:"client_id"`
	ClientKey string `json:"client_key"`
	Role      string `json:"role"`
	PayerID   string `json:"payer_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成 JWT Token
func (s *AuthService) GenerateJWT(client *models.APIClient) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.cfg.JWT.ExpireHours) * time.Hour)

	claims := JWTClaims{
		ClientID:  client.ID,
		ClientKey: client.ClientKey,
		Role:      client.Role,
		PayerID:   client.PayerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// IssueToken 接入方凭密钥换取 Token
func (s *AuthService) IssueToken(ctx context.Context, clientKey, secret string) (*models.APIClient, string, time.Time, error) {
	client, err := s.clientRepo.GetByClientKey(ctx, strings.TrimSpace(clientKey))
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if client == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := s.VerifySecret(client.SecretHash, secret); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if client.Status != constants.APIClientStatusActive {
		return nil, "", time.Time{}, ErrClientDisabled
	}

	token, expiresAt, err := s.GenerateJWT(client)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := time.Now()
	if err := s.clientRepo.TouchLastLogin(ctx, client.ID, now); err != nil {
		return nil, "", time.Time{}, err
	}
	client.LastLoginAt = &now
	_ = cache.SetAPIClientAuthState(ctx, cache.BuildAPIClientAuthState(client))
	return client, token, expiresAt, nil
}

// ResolveClientState 获取接入方鉴权快照，优先读缓存
func (s *AuthService) ResolveClientState(ctx context.Context, clientID uint) (*cache.APIClientAuthState, error) {
	if state, hit, err := cache.GetAPIClientAuthState(ctx, clientID); err == nil && hit {
		return state, nil
	}
	client, err := s.clientRepo.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrInvalidToken
	}
	state := cache.BuildAPIClientAuthState(client)
	_ = cache.SetAPIClientAuthState(ctx, state)
	return state, nil
}

// CreateAPIClientInput 创建接入方参数
type CreateAPIClientInput struct {
	ClientKey string
	Secret    string
	Role      string
	PayerID   string
}

// CreateAPIClient 创建接入方（密钥以 bcrypt 存储）
func (s *AuthService) CreateAPIClient(ctx context.Context, input CreateAPIClientInput) (*models.APIClient, error) {
	clientKey := strings.TrimSpace(input.ClientKey)
	role := strings.TrimSpace(input.Role)
	if clientKey == "" || strings.TrimSpace(input.Secret) == "" {
		return nil, ErrClientInvalid
	}
	if !isBuiltinClientRole(role) {
		return nil, ErrClientInvalid
	}
	existing, err := s.clientRepo.GetByClientKey(ctx, clientKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrClientKeyExists
	}
	hash, err := s.HashSecret(input.Secret)
	if err != nil {
		return nil, err
	}
	client := &models.APIClient{
		ClientKey:  clientKey,
		SecretHash: hash,
		Role:       role,
		PayerID:    strings.TrimSpace(input.PayerID),
		Status:     constants.APIClientStatusActive,
	}
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func isBuiltinClientRole(role string) bool {
	switch role {
	case constants.RolePayerClient, constants.RoleOperator, constants.RoleAdmin:
		return true
	}
	return false
}

// GetAPIClient 获取接入方，不存在返回 ErrClientNotFound
func (s *AuthService) GetAPIClient(ctx context.Context, clientID uint) (*models.APIClient, error) {
	client, err := s.clientRepo.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// ListAPIClients 分页列出接入方
func (s *AuthService) ListAPIClients(ctx context.Context, filter repository.APIClientListFilter) ([]models.APIClient, int64, error) {
	return s.clientRepo.List(ctx, filter)
}

// SetClientStatus 启用或停用接入方，立即清除鉴权快照使已签发 Token 失效
func (s *AuthService) SetClientStatus(ctx context.Context, clientID uint, status string) (*models.APIClient, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != constants.APIClientStatusActive && status != constants.APIClientStatusDisabled {
		return nil, ErrClientInvalid
	}
	client, err := s.clientRepo.UpdateStatus(ctx, clientID, status)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	_ = cache.DelAPIClientAuthState(ctx, clientID)
	return client, nil
}

// SetClientPrimaryRole 同步接入方主角色，Token 中的 role 声明随之变化
func (s *AuthService) SetClientPrimaryRole(ctx context.Context, clientID uint, role string) (*models.APIClient, error) {
	client, err := s.clientRepo.UpdateRole(ctx, clientID, strings.TrimSpace(role))
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	_ = cache.DelAPIClientAuthState(ctx, clientID)
	return client, nil
}
