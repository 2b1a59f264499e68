package database

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// Manager はトランザクションスコープのアドバイザリロックを扱います
type Manager struct {
	tx pgx.Tx
}

// NewManager はトランザクションからロックマネージャーを生成します
func NewManager(tx pgx.Tx) *Manager {
	return &Manager{tx: tx}
}

// GenerateLockID は文字列からロックIDを生成します
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	hash := h.Sum(nil)

	// ハッシュの最初の8バイトをint64として使用
	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}

	return id
}

// TryAcquire はロックの取得を試み、他で保持されていれば false を返します
// ロックはトランザクション終了時に解放されます
func (m *Manager) TryAcquire(ctx context.Context, lockID int64) (bool, error) {
	var acquired bool
	if err := m.tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return acquired, nil
}

// AdvisoryLocker は PostgreSQL のアドバイザリロックによる domain.Locker 実装です
// 複数のサーバ・CLI プロセスから同じデータベースを使う場合に排他できます
type AdvisoryLocker struct {
	provider *TransactionProvider
}

var _ domain.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker は新しいAdvisoryLockerを作成します
func NewAdvisoryLocker(provider *TransactionProvider) *AdvisoryLocker {
	return &AdvisoryLocker{provider: provider}
}

// TryWithLock はロック用のトランザクションを開いたまま fn を実行します
func (l *AdvisoryLocker) TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	return Transact(ctx, l.provider, func(a *Adapter) (bool, error) {
		acquired, err := a.Locks.TryAcquire(ctx, GenerateLockID(key))
		if err != nil || !acquired {
			return false, err
		}
		return true, fn(ctx)
	})
}
