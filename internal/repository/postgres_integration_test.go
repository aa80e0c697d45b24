//go:build integration
// +build integration

package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := models.AllModels()
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(cleanupModels...); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresIdempotencyKeyUniqueAndMetadataFilter(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewCartPaymentRepository(db)
	ctx := context.Background()

	cartPayment := &models.CartPayment{
		PayerID:       "pg-payer",
		Amount:        1000,
		Currency:      "USD",
		CaptureMethod: constants.CaptureMethodManual,
		Metadata:      models.JSON{"order_ref": "pg-order-1"},
	}
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}

	intent := newTestIntent(cartPayment, "pg-key-1", 1000)
	if err := repo.InsertPaymentIntent(ctx, intent); err != nil {
		t.Fatalf("insert intent failed: %v", err)
	}
	duplicate := newTestIntent(cartPayment, "pg-key-1", 1000)
	if err := repo.InsertPaymentIntent(ctx, duplicate); !errors.Is(err, ErrDuplicateIdempotencyKey) {
		t.Fatalf("duplicate insert want ErrDuplicateIdempotencyKey got %v", err)
	}

	rows, total, err := repo.ListCartPayments(ctx, CartPaymentListFilter{
		Page:          1,
		PageSize:      10,
		MetadataKey:   "order_ref",
		MetadataValue: "pg-order-1",
	})
	if err != nil {
		t.Fatalf("list by metadata failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("list by metadata want 1 got total=%d len=%d", total, len(rows))
	}
}
