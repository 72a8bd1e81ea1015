package ports

import "context"

type Locker interface {
	// TryLock returns a release func, or ok=false when the key is already held.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}
