package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dujiao-next/payin/internal/models"
)

const authStateCacheTTL = 10 * time.Minute

// APIClientAuthState 接入方鉴权快照
// 仅用于服务端 Redis 缓存，避免每次请求查询数据库
type APIClientAuthState struct {
	ClientID  uint   `json:"client_id"`
	ClientKey string `json:"client_key"`
	Role      string `json:"role"`
	PayerID   string `json:"payer_id"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updated_at"`
}

func apiClientAuthStateKey(clientID uint) string {
	return fmt.Sprintf("auth:client:%d", clientID)
}

// BuildAPIClientAuthState 从接入方模型构建鉴权快照
func BuildAPIClientAuthState(client *models.APIClient) *APIClientAuthState {
	if client == nil {
		return nil
	}
	return &APIClientAuthState{
		ClientID:  client.ID,
		ClientKey: client.ClientKey,
		Role:      client.Role,
		PayerID:   client.PayerID,
		Status:    client.Status,
		UpdatedAt: time.Now().Unix(),
	}
}

// GetAPIClientAuthState 获取接入方鉴权快照
func GetAPIClientAuthState(ctx context.Context, clientID uint) (*APIClientAuthState, bool, error) {
	if clientID == 0 {
		return nil, false, nil
	}
	var state APIClientAuthState
	hit, err := GetJSON(ctx, apiClientAuthStateKey(clientID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetAPIClientAuthState 写入接入方鉴权快照
func SetAPIClientAuthState(ctx context.Context, state *APIClientAuthState) error {
	if state == nil || state.ClientID == 0 {
		return nil
	}
	return SetJSON(ctx, apiClientAuthStateKey(state.ClientID), state, authStateCacheTTL)
}

// DelAPIClientAuthState 删除接入方鉴权快照
func DelAPIClientAuthState(ctx context.Context, clientID uint) error {
	if clientID == 0 {
		return nil
	}
	return Del(ctx, apiClientAuthStateKey(clientID))
}
