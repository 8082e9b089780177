package demo

import (
	"context"

	"nx-ipc/client"
	"nx-ipc/message"
	"nx-ipc/version"
)

// Client is the typed client of the demo service.
type Client struct {
	*client.Session
}

func NewClient(s *client.Session) *Client {
	return &Client{Session: s}
}

func (c *Client) Add(ctx context.Context, a, b uint32) (uint64, error) {
	var sum uint64
	err := c.Send(ctx, client.Command{
		ID:  CmdAdd,
		In:  []message.Encoder{message.Data(a), message.Data(b)},
		Out: []message.Decoder{message.DataTo(&sum)},
	})
	return sum, err
}

func (c *Client) echo(ctx context.Context, id uint32, in, out *message.Buffer) (int, error) {
	var n uint32
	err := c.Send(ctx, client.Command{
		ID:  id,
		In:  []message.Encoder{in, out},
		Out: []message.Decoder{message.DataTo(&n)},
	})
	return int(n), err
}

// Echo copies in to out through map-alias buffers.
func (c *Client) Echo(ctx context.Context, in, out []byte) (int, error) {
	return c.echo(ctx, CmdEcho, message.InMapAlias(in), message.OutMapAlias(out))
}

// EchoAuto lets the engine pick pointer or map-alias transport per buffer.
func (c *Client) EchoAuto(ctx context.Context, in, out []byte) (int, error) {
	return c.echo(ctx, CmdEchoAuto, message.InAutoSelect(in), message.OutAutoSelect(out))
}

// EchoPointer copies through the server's pointer buffer.
func (c *Client) EchoPointer(ctx context.Context, in, out []byte) (int, error) {
	return c.echo(ctx, CmdEchoPointer, message.InPointer(in), message.OutPointer(out))
}

// OpenCounter returns a new counter object.
func (c *Client) OpenCounter(ctx context.Context) (*Counter, error) {
	var info message.ObjectInfo
	err := c.Send(ctx, client.Command{
		ID:  CmdOpenCounter,
		Out: []message.Decoder{message.ObjectTo(&info)},
	})
	if err != nil {
		return nil, err
	}
	return &Counter{Session: c.Child(info)}, nil
}

// GetProcessID asks the server which pid the kernel stamped on the request.
func (c *Client) GetProcessID(ctx context.Context) (uint64, error) {
	var pid uint64
	err := c.Send(ctx, client.Command{
		ID:  CmdGetProcessID,
		In:  []message.Encoder{message.ProcessID()},
		Out: []message.Decoder{message.DataTo(&pid)},
	})
	return pid, err
}

func (c *Client) Describe(ctx context.Context) (Description, error) {
	var d Description
	buf := message.OutMapAlias(make([]byte, 0x40))
	err := c.Send(ctx, client.Command{
		ID:  CmdDescribe,
		In:  []message.Encoder{buf},
		Out: []message.Decoder{message.SizedTo(&d, buf)},
	})
	return d, err
}

// Limit runs whichever Limit variant the client's version has.
func (c *Client) Limit(ctx context.Context) (uint64, error) {
	var legacy uint32
	var current uint64
	err := c.SendFirst(ctx,
		client.Command{
			ID:       CmdLimit,
			Versions: version.From(LimitCutover),
			Out:      []message.Decoder{message.DataTo(&current)},
		},
		client.Command{
			ID:       CmdLimitLegacy,
			Versions: version.To(version.New(9, 2, 0)),
			Out:      []message.Decoder{message.DataTo(&legacy)},
		},
	)
	if legacy != 0 {
		return uint64(legacy), err
	}
	return current, err
}

// Counter is a counter object returned by OpenCounter.
type Counter struct {
	*client.Session
}

func (c *Counter) Increment(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.Send(ctx, client.Command{ID: CmdIncrement, Out: []message.Decoder{message.DataTo(&n)}})
	return n, err
}

func (c *Counter) Get(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.Send(ctx, client.Command{ID: CmdGet, Out: []message.Decoder{message.DataTo(&n)}})
	return n, err
}
