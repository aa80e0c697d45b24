package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/payin/internal/config"
)

type recordingService struct {
	name     string
	startErr error
	block    bool

	mu      *sync.Mutex
	stopped *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.stopped = append(*s.stopped, s.name)
	return nil
}

func TestRunnerStopsInReverseOrderOnServiceError(t *testing.T) {
	var mu sync.Mutex
	var stopped []string
	failure := errors.New("listen failed")
	runner := NewRunner(
		&recordingService{name: "http", startErr: failure, mu: &mu, stopped: &stopped},
		nil,
		&recordingService{name: "worker", block: true, mu: &mu, stopped: &stopped},
	)
	if names := runner.Names(); len(names) != 2 || names[0] != "http" || names[1] != "worker" {
		t.Fatalf("unexpected services: %v", names)
	}

	err := runner.Run(context.Background(), time.Second, nil)
	if !errors.Is(err, failure) {
		t.Fatalf("expected start failure, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(stopped) != 2 || stopped[0] != "worker" || stopped[1] != "http" {
		t.Fatalf("expected reverse stop order, got %v", stopped)
	}
}

func TestRunnerReturnsNilOnCancel(t *testing.T) {
	var mu sync.Mutex
	var stopped []string
	runner := NewRunner(&recordingService{name: "worker", block: true, mu: &mu, stopped: &stopped})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, time.Second, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner(nil).Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("expected error for empty runner")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]string{
		"":         ModeAll,
		"all":      ModeAll,
		" API ":    ModeAPI,
		"worker":   ModeWorker,
		"Worker\n": ModeWorker,
	}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestNormalizeOptionsUsesServerShutdownTimeout(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{ShutdownTimeout: 3 * time.Second}}
	opts, err := normalizeOptions(Options{Config: cfg, Mode: "api"})
	if err != nil {
		t.Fatalf("normalize options failed: %v", err)
	}
	if opts.ShutdownTimeout != 3*time.Second || opts.Mode != ModeAPI || opts.Logger == nil {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = normalizeOptions(Options{})
	if err != nil {
		t.Fatalf("normalize default options failed: %v", err)
	}
	if opts.ShutdownTimeout != defaultShutdownTimeout || opts.Mode != ModeAll {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestBuildRunnerWorkerModeRequiresQueue(t *testing.T) {
	cfg := &config.Config{}
	if _, err := BuildRunner(cfg, ModeWorker); err == nil {
		t.Fatalf("expected error when queue is disabled in worker mode")
	}
	if _, err := BuildRunner(cfg, "batch"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if _, err := BuildRunner(nil, ModeAll); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
