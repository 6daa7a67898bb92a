// Guarded invocation of user command handlers.
//
// A panic in a handler must not take down the host; it becomes a recoverable
// failure on the reply channel, like any other failed command. The guard also
// owns the failure precedence every entity kind shares, so the per-kind
// servers only decide what to do with the resolved outcome.
package component

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/lightbend/kalix-go-sdk/kalix/reply"
)

// InvokeCommand runs a user command handler and resolves its outcome.
//
// The returned failure follows the protocol's precedence: a failure recorded
// on the command context wins (read through contextFailure after the handler
// ran), then a panic or returned error, then a failure reply value. A nil
// failure means the command succeeded with the returned reply.
func InvokeCommand(logger Logger, operation string, contextFailure func() *reply.ContextFailure, fn func() (*reply.Reply, error)) (r *reply.Reply, failure *reply.ContextFailure) {
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				if logger != nil {
					logger.Error("command_handler_panicked",
						"operation", operation,
						"panic", p,
						"stack", string(debug.Stack()),
					)
				}
				r = nil
				err = fmt.Errorf("panic in %s: %v", operation, p)
			}
		}()
		r, err = fn()
	}()

	if contextFailure != nil {
		if f := contextFailure(); f != nil {
			return nil, f
		}
	}
	if err != nil {
		var cf *reply.ContextFailure
		if errors.As(err, &cf) {
			return nil, cf
		}
		return nil, reply.NewContextFailure(err.Error())
	}
	if r != nil && r.Kind() == reply.KindFailure {
		return nil, r.FailureValue()
	}
	return r, nil
}
