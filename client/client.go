// Package client implements client dispatch: typed commands laid out in a
// pooled message buffer, sent over a session and decoded from the reply.
//
// One call, as Session.Send runs it:
//
//	Command{ID, In, Out}
//	  → version gate (ResultNotSupported)
//	  → middleware chain
//	  → ReserveAll(In)            size pass, buffers classified
//	  → codec.WriteRequest        headers + descriptors
//	  → EncodeAll(In)             value pass
//	  → kernel.SendSyncRequest    blocks until the reply is in the buffer
//	  → codec.ReadResponse        result code, out handles and objects
//	  → DecodeAll(Out)
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nx-ipc/message"
	"nx-ipc/middleware"
	"nx-ipc/protocol"
	"nx-ipc/transport"
	"nx-ipc/version"
)

// DefaultBufferPoolSize is how many calls may be in flight at once when no
// pool is given.
const DefaultBufferPoolSize = 4

// closeTimeout bounds the close command sent by Session.Close.
const closeTimeout = time.Second

// Client sends commands over the kernel's sessions.
type Client struct {
	kernel      transport.Kernel
	logger      *zap.Logger
	version     version.Version
	pool        *transport.BufferPool
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
}

type Option func(*Client)

// WithVersion sets the system version command variants are selected for.
// Defaults to version.Current().
func WithVersion(v version.Version) Option {
	return func(c *Client) {
		c.version = v
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMiddleware appends middlewares run around every Send.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// WithBufferPool shares a message buffer pool between clients.
func WithBufferPool(pool *transport.BufferPool) Option {
	return func(c *Client) {
		c.pool = pool
	}
}

func NewClient(kernel transport.Kernel, opts ...Option) *Client {
	c := &Client{
		kernel:  kernel,
		logger:  zap.NewNop(),
		version: version.Current(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = transport.NewBufferPool(DefaultBufferPoolSize)
	}
	c.handler = middleware.Chain(c.middlewares...)(c.send)
	return c
}

// Version is the system version commands are gated against.
func (c *Client) Version() version.Version {
	return c.version
}

// Open adopts an object the caller already holds.
func (c *Client) Open(info message.ObjectInfo) *Session {
	return &Session{client: c, info: info}
}

// Connect opens a session on a port.
func (c *Client) Connect(ctx context.Context, port protocol.Handle, p message.Protocol) (*Session, error) {
	h, err := c.kernel.ConnectToPort(ctx, port)
	if err != nil {
		return nil, err
	}
	return c.Open(message.FromHandle(h).WithProtocol(p)), nil
}

// ConnectNamed opens a session on a named port.
func (c *Client) ConnectNamed(ctx context.Context, name string, p message.Protocol) (*Session, error) {
	h, err := c.kernel.ConnectToNamedPort(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.Open(message.FromHandle(h).WithProtocol(p)).WithName(name), nil
}

// withMessage runs fn on a message buffer borrowed from the pool.
func (c *Client) withMessage(ctx context.Context, fn func(msg []byte) error) error {
	buf, err := c.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Put(buf)
	return fn(buf.Bytes())
}

type callKey struct{}

type call struct {
	session *Session
	cmd     *Command
}

// send is the innermost handler of the middleware chain.
func (c *Client) send(ctx context.Context, _ *middleware.Request) error {
	cl := ctx.Value(callKey{}).(*call)
	return c.withMessage(ctx, func(msg []byte) error {
		return cl.session.invoke(ctx, msg, cl.cmd)
	})
}
