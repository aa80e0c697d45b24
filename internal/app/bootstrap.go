package app

import (
	"errors"

	"github.com/dujiao-next/payin/internal/config"
	"github.com/dujiao-next/payin/internal/provider"
	"github.com/dujiao-next/payin/internal/router"
	"github.com/dujiao-next/payin/internal/worker"
)

// BuildRunner 按模式装配 HTTP 服务与对账 Worker
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mode, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if runsWorker(mode) && !cfg.Queue.Enabled {
		if mode == ModeWorker {
			return nil, errors.New("worker mode requires queue.enabled")
		}
		// all 模式下队列关闭时仅运行 API，超时对账退化为手动 reconcile
		mode = ModeAPI
	}

	container := provider.NewContainer(cfg)
	return buildRunner(cfg, mode, container)
}

func buildRunner(cfg *config.Config, mode string, container *provider.Container) (*Runner, error) {
	var services []Service
	if runsAPI(mode) {
		services = append(services, NewHTTPService(cfg.Server, router.SetupRouter(cfg, container)))
	}
	if runsWorker(mode) {
		workerService, err := worker.NewService(&cfg.Queue, cfg.CartPayment.ReconcileSweepCron, worker.NewConsumer(container))
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	}
	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return err
	}
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	opts.Logger.Infow("app_start",
		"addr", opts.Config.Server.Host+":"+opts.Config.Server.Port,
		"mode", opts.Mode,
		"services", runner.Names(),
	)
	return RunWithOptions(runner, opts)
}
