package provider

import (
	"github.com/dujiao-next/payin/internal/authz"
	"github.com/dujiao-next/payin/internal/cache"
	"github.com/dujiao-next/payin/internal/config"
	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/lock"
	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/payment/stripe"
	"github.com/dujiao-next/payin/internal/queue"
	"github.com/dujiao-next/payin/internal/repository"
	"github.com/dujiao-next/payin/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Infrastructure
	LockManager     lock.Manager
	Snapshots       *cache.CartPaymentSnapshotStore
	PaymentProvider service.PaymentProvider

	// Repositories
	APIClientRepo   repository.APIClientRepository
	CartPaymentRepo repository.CartPaymentRepository

	// Services
	AuthzService       *authz.Service
	AuthService        *service.AuthService
	CartPaymentService *service.CartPaymentService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化基础设施
	c.initInfrastructure()

	// 2. 初始化 Repositories
	c.initRepositories()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initInfrastructure() {
	if cache.Enabled() {
		c.LockManager = lock.NewRedisManager(cache.Client(), cache.Prefix())
	} else {
		logger.Warnw("provider_lock_manager_local", "reason", "redis disabled")
		c.LockManager = lock.NewLocalManager()
	}
	c.Snapshots = cache.NewCartPaymentSnapshotStore(c.Config.CartPayment.SnapshotTTL)

	stripeClient, err := stripe.NewClient(stripe.Config{
		SecretKey:               c.Config.Stripe.SecretKey,
		WebhookSecret:           c.Config.Stripe.WebhookSecret,
		APIBaseURL:              c.Config.Stripe.APIBaseURL,
		Timeout:                 c.Config.Stripe.Timeout,
		WebhookToleranceSeconds: c.Config.Stripe.WebhookToleranceSeconds,
	})
	if err != nil {
		logger.Errorw("provider_init_stripe_failed", "error", err)
		panic(err)
	}
	c.PaymentProvider = service.NewStripeProvider(stripeClient)
}

func (c *Container) initRepositories() {
	db := models.DB
	c.APIClientRepo = repository.NewAPIClientRepository(db)
	c.CartPaymentRepo = repository.NewCartPaymentRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.APIClientRepo)
	c.bootstrapClient()

	// 队列未启用时不注入调度器，超时后的对账依赖周期扫描或人工触发
	var scheduler service.TaskScheduler
	if c.QueueClient != nil {
		scheduler = c.QueueClient
	}
	c.CartPaymentService = service.NewCartPaymentService(
		c.CartPaymentRepo,
		c.PaymentProvider,
		c.LockManager,
		scheduler,
		c.Snapshots,
		service.CartPaymentServiceOptionsFromConfig(&c.Config.CartPayment),
	)
}

// bootstrapClient 首次启动时创建引导接入方并绑定角色
func (c *Container) bootstrapClient() {
	boot := c.Config.Bootstrap
	role := boot.Role
	if role == "" {
		role = constants.RoleOperator
	}
	client, err := models.InitBootstrapClient(boot.ClientKey, boot.ClientSecret, role)
	if err != nil {
		logger.Warnw("provider_bootstrap_client_failed", "client_key", boot.ClientKey, "error", err)
		return
	}
	if client == nil {
		return
	}
	if err := c.AuthzService.SetClientRoles(client.ID, []string{client.Role}); err != nil {
		logger.Warnw("provider_bootstrap_client_role_failed", "client_id", client.ID, "role", client.Role, "error", err)
	}
}
