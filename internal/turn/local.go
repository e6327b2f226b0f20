package turn

import (
	"context"

	"github.com/nugget/wren/internal/agent"
)

// LocalTransport runs turns in-process against an agent loop, without
// an HTTP hop.
type LocalTransport struct {
	Loop *agent.Loop
}

// Chat implements Transport.
func (t LocalTransport) Chat(ctx context.Context, req *agent.Request) (*agent.Result, error) {
	return t.Loop.Run(ctx, req)
}
