package models

import (
	"errors"
	"strings"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// InitBootstrapClient 初始化引导用的运维接入方
func InitBootstrapClient(clientKey, secret, role string) (*APIClient, error) {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" || strings.TrimSpace(secret) == "" {
		return nil, nil
	}

	var existing APIClient
	err := DB.Where("client_key = ?", clientKey).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	client := APIClient{
		ClientKey:  clientKey,
		SecretHash: string(hash),
		Role:       role,
		Status:     constants.APIClientStatusActive,
	}
	if err := DB.Create(&client).Error; err != nil {
		return nil, err
	}
	logger.Warnw("bootstrap_api_client_created", "client_key", clientKey, "role", role)
	return &client, nil
}
