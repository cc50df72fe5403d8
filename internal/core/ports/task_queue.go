package ports

import "context"

// TaskQueue runs submitted tasks asynchronously. Tasks sharing a key run one
// at a time, in submission order.
type TaskQueue interface {
	Submit(key string, task func(ctx context.Context))
}
