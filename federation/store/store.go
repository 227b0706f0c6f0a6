package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/agentfed/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrConflict  = errors.New("store: status changed concurrently")
	ErrDuplicate = errors.New("store: duplicate record")
)

// activationRetries 首次激活事务遇到死锁或序列化失败时的重试次数
const activationRetries = 3

// Store 联邦协议持久化
type Store struct {
	pm     *database.PoolManager
	logger *zap.Logger
	now    func() time.Time
}

// New 创建 Store。
func New(pm *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pm:     pm,
		logger: logger.With(zap.String("component", "federation_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping 检查底层连接。
func (s *Store) Ping(ctx context.Context) error {
	return s.pm.Ping(ctx)
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.pm.DB().WithContext(ctx)
}

// notFound 把 gorm 的未找到错误替换为 target。
func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// isDuplicate 识别三种方言的唯一约束冲突。
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// utc 统一以 UTC 落库，保证 SQLite 文本时间可按字典序比较。
func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
