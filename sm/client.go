package sm

import (
	"context"

	"nx-ipc/client"
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/server"
	"nx-ipc/version"
)

// Client is a session with sm.
type Client struct {
	*client.Session
}

// Connect opens sm in the dialect of the client's version and registers the
// calling process.
func Connect(ctx context.Context, c *client.Client) (*Client, error) {
	s, err := c.ConnectNamed(ctx, PortName, ProtocolFor(c.Version()))
	if err != nil {
		return nil, err
	}
	smc := &Client{Session: s}
	if err := smc.RegisterClient(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return smc, nil
}

func (c *Client) RegisterClient(ctx context.Context) error {
	return c.Send(ctx, client.Command{
		ID: CmdRegisterClient,
		In: []message.Encoder{message.ProcessID()},
	})
}

// DetachClient is only available from 11.0.0 on.
func (c *Client) DetachClient(ctx context.Context) error {
	return c.Send(ctx, client.Command{
		ID:       CmdDetachClient,
		Versions: version.From(DetachFrom),
		In:       []message.Encoder{message.ProcessID()},
	})
}

func (c *Client) GetServiceHandle(ctx context.Context, name string) (protocol.Handle, error) {
	var h protocol.Handle
	err := c.Send(ctx, client.Command{
		ID:  CmdGetServiceHandle,
		In:  []message.Encoder{message.Data(NewServiceName(name))},
		Out: []message.Decoder{message.MoveHandleTo(&h)},
	})
	return h, err
}

// GetService opens a session with a service speaking dialect p.
func (c *Client) GetService(ctx context.Context, name string, p message.Protocol) (*client.Session, error) {
	h, err := c.GetServiceHandle(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.Child(message.FromHandle(h).WithProtocol(p)).WithName(name), nil
}

// RegisterService registers an instance of name and returns the port to
// serve it on.
func (c *Client) RegisterService(ctx context.Context, name string, maxSessions int32, light bool) (protocol.Handle, error) {
	var port protocol.Handle
	err := c.Send(ctx, client.Command{
		ID: CmdRegisterService,
		In: []message.Encoder{
			message.Data(NewServiceName(name)),
			message.Data(light),
			message.Data(maxSessions),
		},
		Out: []message.Decoder{message.MoveHandleTo(&port)},
	})
	return port, err
}

func (c *Client) UnregisterService(ctx context.Context, name string) error {
	return c.Send(ctx, client.Command{
		ID: CmdUnregisterService,
		In: []message.Encoder{message.Data(NewServiceName(name))},
	})
}

func (c *Client) HasService(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := c.Send(ctx, client.Command{
		ID:  CmdHasService,
		In:  []message.Encoder{message.Data(NewServiceName(name))},
		Out: []message.Decoder{message.DataTo(&ok)},
	})
	return ok, err
}

// Publish registers name with sm and serves its port on m. Light services
// speak TIPC.
func Publish(ctx context.Context, c *Client, m *server.Manager, name string, maxSessions int32, light bool, factory func() server.Object) (protocol.Handle, error) {
	port, err := c.RegisterService(ctx, name, maxSessions, light)
	if err != nil {
		return protocol.InvalidHandle, err
	}
	p := message.ProtocolCmif
	if light {
		p = message.ProtocolTipc
	}
	m.AddPort(port, name, p, factory)
	return port, nil
}
