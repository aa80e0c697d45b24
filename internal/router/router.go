package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dujiao-next/payin/internal/authz"
	"github.com/dujiao-next/payin/internal/cache"
	"github.com/dujiao-next/payin/internal/config"
	adminhandlers "github.com/dujiao-next/payin/internal/http/handlers/admin"
	publichandlers "github.com/dujiao-next/payin/internal/http/handlers/public"
	"github.com/dujiao-next/payin/internal/http/response"
	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "payin"
	}
	redisClient := cache.Client()
	issueTokenRule := NewRateLimitRule(fmt.Sprintf("%s:rate:issue_token", redisPrefix), cfg.RateLimit.IssueToken, "too many token requests")
	createPaymentRule := NewRateLimitRule(fmt.Sprintf("%s:rate:create_payment", redisPrefix), cfg.RateLimit.CreatePayment, "too many payment requests")

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/token", RateLimitMiddleware(redisClient, issueTokenRule, KeyByIPAndJSONField("client_key")), publicHandler.IssueToken)

		// 支付渠道回调（签名校验，无需鉴权）
		apiV1.POST("/webhooks/stripe", publicHandler.StripeWebhook)

		authorized := apiV1.Group("")
		authorized.Use(JWTAuthMiddleware(c.AuthService), ClientRBACMiddleware(c.AuthzService))
		{
			authorized.POST("/cart-payments", RateLimitMiddleware(redisClient, createPaymentRule, KeyByClient), publicHandler.CreateCartPayment)
			authorized.GET("/cart-payments/:id", publicHandler.GetCartPayment)
			authorized.POST("/cart-payments/:id/adjust", publicHandler.AdjustCartPayment)

			admin := authorized.Group("/admin")
			{
				admin.GET("/cart-payments", adminHandler.ListCartPayments)
				admin.GET("/cart-payments/:id", adminHandler.GetCartPayment)
				admin.GET("/cart-payments/:id/history", adminHandler.ListAdjustmentHistory)
				admin.POST("/cart-payments/:id/capture", adminHandler.CaptureCartPayment)
				admin.POST("/cart-payments/:id/cancel", adminHandler.CancelCartPayment)
				admin.POST("/cart-payments/:id/refund", adminHandler.RefundCartPayment)
				admin.POST("/cart-payments/:id/reconcile", adminHandler.ReconcileCartPayment)
				admin.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildPermissionCatalog(r))
				})
				admin.GET("/authz/roles", adminHandler.ListAuthzRoles)
				admin.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				admin.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
				admin.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
				admin.POST("/authz/reload", adminHandler.ReloadAuthzPolicy)

				admin.GET("/api-clients", adminHandler.ListAPIClients)
				admin.GET("/api-clients/:id", adminHandler.GetAPIClient)
				admin.PUT("/api-clients/:id/status", adminHandler.SetAPIClientStatus)
				admin.PUT("/api-clients/:id/roles", adminHandler.SetAPIClientRoles)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type permissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

// buildPermissionCatalog 列出需要 RBAC 授权的路由，便于运维配置角色策略
func buildPermissionCatalog(engine *gin.Engine) []permissionCatalogItem {
	if engine == nil {
		return []permissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]permissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/") {
			continue
		}
		if item.Path == "/api/v1/auth/token" || strings.HasPrefix(item.Path, "/api/v1/webhooks/") {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, permissionCatalogItem{
			Module:     derivePermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func derivePermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if segments[0] != "admin" || len(segments) == 1 {
		return segments[0]
	}
	return "admin_" + segments[1]
}
