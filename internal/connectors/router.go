package connectors

import (
	"context"
	"fmt"
	"strings"
)

// LocalPrefix marks connector ids served in-process by a LocalInvoker.
const LocalPrefix = "local:"

// Router sends local connector ids to the in-process invoker and
// everything else to the remote invoker.
type Router struct {
	Local  Invoker
	Remote Invoker
}

func NewRouter(local, remote Invoker) *Router {
	return &Router{Local: local, Remote: remote}
}

func (r *Router) Invoke(ctx context.Context, d Descriptor, p Payload) (Result, error) {
	if strings.HasPrefix(d.ConnectorID, LocalPrefix) {
		if r.Local == nil {
			return Result{}, fmt.Errorf("no local connectors configured for %q", d.ConnectorID)
		}
		return r.Local.Invoke(ctx, d, p)
	}
	if r.Remote == nil {
		return Result{}, fmt.Errorf("no remote connector service configured for %q", d.ConnectorID)
	}
	return r.Remote.Invoke(ctx, d, p)
}
