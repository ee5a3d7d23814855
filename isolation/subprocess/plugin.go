package subprocess

import (
	"context"
	"errors"
	"net/rpc"
	"time"

	"github.com/hashicorp/go-plugin"
	"github.com/robbyt/go-polyexpr/isolation/proxy"
)

const pluginName = "isolate"

// Handshake keeps the child from being started by accident. The cookie is not a secret.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "POLYEXPR_ISOLATE",
	MagicCookieValue: "5f0c4d1f3b7e4a2c9d8e6b1a0f2c3d4e",
}

// Call is the net/rpc argument carrying one encoded request.
type Call struct {
	Payload []byte
	// Timeout is what remained of the caller's deadline, zero when there was none.
	Timeout time.Duration
}

// isolatePlugin binds the proxy to go-plugin. Only the child side has a proxy.
type isolatePlugin struct {
	proxy *proxy.Proxy
}

func (p *isolatePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	if p.proxy == nil {
		return nil, errors.New("isolate plugin has no proxy")
	}
	return &rpcServer{proxy: p.proxy}, nil
}

func (p *isolatePlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcTransport{client: c}, nil
}

// rpcServer runs inside the child.
type rpcServer struct {
	proxy *proxy.Proxy
}

func (s *rpcServer) Handle(args *Call, reply *[]byte) error {
	ctx := context.Background()
	if args.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, args.Timeout)
		defer cancel()
	}
	*reply = s.proxy.Handle(ctx, args.Payload)
	return nil
}

// rpcTransport is the host end of the connection.
type rpcTransport struct {
	client *rpc.Client
}

func (t *rpcTransport) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	args := &Call{Payload: payload}
	if deadline, ok := ctx.Deadline(); ok {
		args.Timeout = time.Until(deadline)
		if args.Timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	var reply []byte
	call := t.client.Go("Plugin.Handle", args, &reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return nil, call.Error
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
