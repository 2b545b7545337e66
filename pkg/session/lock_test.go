package session

import (
	"context"
	"fmt"
	"testing"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nil)
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		rid := fmt.Sprintf("route-%d", i)
		_ = mgr.WithLock(ctx, rid, func(context.Context) error { return nil })
		_ = mgr.Delete(ctx, rid)
	}

	lockCount := len(mgr.locks)
	t.Logf("Routes Locked: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
