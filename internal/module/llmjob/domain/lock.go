package domain

import "context"

// Locker はプロセスをまたいだ排他実行を提供します
type Locker interface {
	// TryWithLock は key のロックを取得できた場合のみ fn を実行します
	// 他で保持されている場合は fn を呼ばずに false を返します
	TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error)
}
