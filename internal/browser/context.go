// internal/browser/context.go
package browser

import "context"

// CombineContext derives from parentCtx (keeping its values, which carry the CDP target)
// and additionally cancels when secondaryCtx is done.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
