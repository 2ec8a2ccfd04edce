package kernel

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNoThread = errors.New("no guest thread bound to context")

type threadKey struct{}

// GetThread returns the guest thread driving this host goroutine. The
// syscall layer binds it with SetThread before calling into the process.
func GetThread(ctx context.Context) (*Thread, bool) {
	if v := ctx.Value(threadKey{}); v != nil {
		return v.(*Thread), true
	}

	return nil, false
}

func SetThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}
