package isolation

import (
	"context"
	"fmt"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/boundary"
)

// Transport carries one encoded request into an isolation context and returns the encoded
// response. Only bytes cross it.
type Transport interface {
	RoundTrip(ctx context.Context, payload []byte) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f TransportFunc) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Client is the host-side view of an execution proxy.
type Client struct {
	transport Transport
}

func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

func (c *Client) call(ctx context.Context, req *boundary.Request) (*boundary.Value, error) {
	payload, err := boundary.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	data, err := c.transport.RoundTrip(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", platform.ErrBoundaryFault, req.Op, err)
	}
	resp, err := boundary.DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	return resp.Unpack()
}

// InstallResolver hands the module table to the proxy. It must precede Load.
func (c *Client) InstallResolver(ctx context.Context, modules map[string]string) error {
	_, err := c.call(ctx, &boundary.Request{Op: boundary.OpInstallResolver, Modules: modules})
	return err
}

// Load asks the proxy to load the artifact at path.
func (c *Client) Load(ctx context.Context, path string) error {
	_, err := c.call(ctx, &boundary.Request{Op: boundary.OpLoad, Path: path})
	return err
}

// Invoke calls the zero-argument entry point named method.
func (c *Client) Invoke(ctx context.Context, method string) (*boundary.Value, error) {
	return c.call(ctx, &boundary.Request{Op: boundary.OpInvoke, Name: method})
}

// SetField marshals instance and stores it in the named field.
func (c *Client) SetField(ctx context.Context, field string, instance any) error {
	v, err := boundary.FromGo(instance)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, &boundary.Request{Op: boundary.OpSetField, Name: field, Value: v})
	return err
}

// Unload releases everything loaded inside the context.
func (c *Client) Unload(ctx context.Context) error {
	_, err := c.call(ctx, &boundary.Request{Op: boundary.OpUnload})
	return err
}
