package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/dujiao-next/payin/internal/authz"
	"github.com/dujiao-next/payin/internal/config"
	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/google/uuid"
)

// 创建接入方并输出一个可直接使用的 Bearer Token
func main() {
	var (
		clientKey string
		secret    string
		role      string
		payerID   string
	)
	flag.StringVar(&clientKey, "client-key", "demo-shop", "接入方标识")
	flag.StringVar(&secret, "secret", "", "接入方密钥，留空时随机生成")
	flag.StringVar(&role, "role", constants.RolePayerClient, "角色: payer_client / operator / admin")
	flag.StringVar(&payerID, "payer-id", "", "绑定的付款方，留空表示不限")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Database.LogLevel); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	authzService, err := authz.NewService(models.DB)
	if err != nil {
		stdLog.Fatalf("Failed to init authz: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		stdLog.Fatalf("Failed to bootstrap roles: %v", err)
	}

	if strings.TrimSpace(secret) == "" {
		secret = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	authService := service.NewAuthService(cfg, repository.NewAPIClientRepository(models.DB))
	client, err := authService.CreateAPIClient(context.Background(), service.CreateAPIClientInput{
		ClientKey: clientKey,
		Secret:    secret,
		Role:      role,
		PayerID:   payerID,
	})
	if errors.Is(err, service.ErrClientKeyExists) {
		stdLog.Fatalf("Client %s already exists, pick another -client-key", clientKey)
	}
	if err != nil {
		stdLog.Fatalf("Failed to create client: %v", err)
	}
	if err := authzService.SetClientRoles(client.ID, []string{client.Role}); err != nil {
		stdLog.Fatalf("Failed to assign role: %v", err)
	}

	token, expiresAt, err := authService.GenerateJWT(client)
	if err != nil {
		stdLog.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("client_id:     %d\n", client.ID)
	fmt.Printf("client_key:    %s\n", client.ClientKey)
	fmt.Printf("client_secret: %s\n", secret)
	fmt.Printf("role:          %s\n", client.Role)
	if client.PayerID != "" {
		fmt.Printf("payer_id:      %s\n", client.PayerID)
	}
	fmt.Printf("token:         %s\n", token)
	fmt.Printf("expires_at:    %s\n", expiresAt.Format("2006-01-02 15:04:05"))
}
