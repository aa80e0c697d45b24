package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateIdempotencyKey 幂等键已被占用（并发请求中的落败方）
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrStalePrecondition 状态前置条件不满足（读取已过期）
	ErrStalePrecondition = errors.New("status precondition not met")
)

// isUniqueViolation 判断是否唯一约束冲突，兼容 sqlite 与 postgres
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
