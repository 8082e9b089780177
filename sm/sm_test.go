package sm

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nx-ipc/client"
	"nx-ipc/demo"
	"nx-ipc/loadbalance"
	"nx-ipc/message"
	"nx-ipc/registry"
	"nx-ipc/result"
	"nx-ipc/server"
	"nx-ipc/transport"
	"nx-ipc/version"
)

func TestServiceName(t *testing.T) {
	assert.Equal(t, "sm:", NewServiceName("sm:").String())
	assert.Equal(t, "verylong", NewServiceName("verylongname").String())
	assert.Equal(t, ServiceName(0x3a6d73), NewServiceName("sm:"))

	assert.True(t, NewServiceName("fsp-srv").Valid())
	assert.True(t, NewServiceName("12345678").Valid())
	assert.False(t, NewServiceName("").Valid())
	assert.False(t, NewServiceName("a\x00b").Valid())
}

type env struct {
	kernel  *transport.Loopback
	manager *server.Manager
	v       version.Version
}

func start(t *testing.T, v version.Version, opts ...Option) *env {
	t.Helper()
	k := transport.NewLoopback(transport.WithProcessID(1))
	m := server.NewManager(k, server.WithVersion(v), server.WithWorkers(2))
	_, err := NewServer(m, k, opts...).Start()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return &env{kernel: k, manager: m, v: v}
}

// connect opens sm as process pid.
func (e *env) connect(t *testing.T, pid uint64) *Client {
	t.Helper()
	c := client.NewClient(e.kernel.ForProcess(pid), client.WithVersion(e.v))
	smc, err := Connect(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(smc.Close)
	return smc
}

func TestPublishAndGetService(t *testing.T) {
	for _, v := range []version.Version{version.New(11, 0, 0), TipcCutover} {
		t.Run(v.String(), func(t *testing.T) {
			e := start(t, v)
			ctx := context.Background()

			srv := e.connect(t, 2)
			assert.Equal(t, ProtocolFor(v) == message.ProtocolTipc, srv.Info().UsesTipc())
			_, err := Publish(ctx, srv, e.manager, demo.ServiceName, 4, false, func() server.Object {
				return demo.NewService()
			})
			require.NoError(t, err)

			app := e.connect(t, 3)
			ok, err := app.HasService(ctx, demo.ServiceName)
			require.NoError(t, err)
			assert.True(t, ok)

			s, err := app.GetService(ctx, demo.ServiceName, message.ProtocolCmif)
			require.NoError(t, err)
			defer s.Close()
			d := demo.NewClient(s)
			sum, err := d.Add(ctx, 20, 22)
			require.NoError(t, err)
			assert.Equal(t, uint64(42), sum)
			pid, err := d.GetProcessID(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), pid)

			require.NoError(t, srv.DetachClient(ctx))
			// Detached clients must register again.
			_, err = srv.GetServiceHandle(ctx, demo.ServiceName)
			assert.ErrorIs(t, err, result.ResultInvalidClient)
		})
	}
}

func TestLightService(t *testing.T) {
	e := start(t, version.New(11, 0, 0))
	ctx := context.Background()

	srv := e.connect(t, 2)
	_, err := Publish(ctx, srv, e.manager, "light", 1, true, func() server.Object {
		return demo.NewService()
	})
	require.NoError(t, err)

	app := e.connect(t, 3)
	s, err := app.GetService(ctx, "light", message.ProtocolTipc)
	require.NoError(t, err)
	sum, err := demo.NewClient(s).Add(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	// One session allowed.
	_, err = app.GetServiceHandle(ctx, "light")
	assert.ErrorIs(t, err, result.ResultSmOutOfSessions)
}

func TestRegistrationErrors(t *testing.T) {
	e := start(t, version.New(11, 0, 0))
	ctx := context.Background()
	srv := e.connect(t, 2)

	_, err := srv.RegisterService(ctx, "dup", 1, false)
	require.NoError(t, err)
	_, err = srv.RegisterService(ctx, "dup", 1, false)
	assert.ErrorIs(t, err, result.ResultAlreadyRegistered)

	_, err = srv.RegisterService(ctx, "", 1, false)
	assert.ErrorIs(t, err, result.ResultInvalidServiceName)

	_, err = srv.GetServiceHandle(ctx, "missing")
	assert.ErrorIs(t, err, result.ResultNotRegistered)

	assert.ErrorIs(t, srv.UnregisterService(ctx, "missing"), result.ResultNotRegistered)
	require.NoError(t, srv.UnregisterService(ctx, "dup"))
	ok, err := srv.HasService(ctx, "dup")
	require.NoError(t, err)
	assert.False(t, ok)

	// A session that never registered its process.
	c := client.NewClient(e.kernel, client.WithVersion(e.v))
	raw, err := c.ConnectNamed(ctx, PortName, ProtocolFor(e.v))
	require.NoError(t, err)
	defer raw.Close()
	_, err = (&Client{Session: raw}).GetServiceHandle(ctx, "dup")
	assert.ErrorIs(t, err, result.ResultInvalidClient)
}

func TestDetachClientIsVersionGated(t *testing.T) {
	e := start(t, version.New(10, 0, 0))
	smc := e.connect(t, 2)
	assert.ErrorIs(t, smc.DetachClient(context.Background()), result.ResultNotSupported)
}

func TestInstancesAreBalanced(t *testing.T) {
	e := start(t, version.New(11, 0, 0), WithBalancer(loadbalance.NewConsistentHashBalancer()))
	ctx := context.Background()

	// Two processes offer the same service; each instance counts its calls.
	services := []*demo.Service{demo.NewService(), demo.NewService()}
	for i, svc := range services {
		srv := e.connect(t, uint64(10+i))
		_, err := Publish(ctx, srv, e.manager, "multi", 8, false, func() server.Object { return svc })
		require.NoError(t, err)
	}

	// The same pid keeps landing on the same instance.
	app := e.connect(t, 99)
	var first message.ObjectInfo
	for i := 0; i < 3; i++ {
		s, err := app.GetService(ctx, "multi", message.ProtocolCmif)
		require.NoError(t, err)
		d, err := demo.NewClient(s).Describe(ctx)
		require.NoError(t, err)
		if i == 0 {
			first = s.Info()
		}
		assert.Equal(t, uint64(i+1), d.Calls, "call %d went to another instance", i)
		s.Close()
	}
	assert.True(t, first.IsValid())
}

// Needs a running etcd, e.g. NXIPC_ETCD_ENDPOINTS=127.0.0.1:2379.
func TestEtcdBackedRegistry(t *testing.T) {
	endpoints := os.Getenv("NXIPC_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("NXIPC_ETCD_ENDPOINTS not set")
	}
	reg, err := registry.NewEtcdRegistry(strings.Split(endpoints, ","))
	require.NoError(t, err)
	defer reg.Close()

	e := start(t, version.New(11, 0, 0), WithRegistry(reg))
	ctx := context.Background()
	srv := e.connect(t, 2)
	name := "etcd" + strconv.Itoa(os.Getpid()%10000)
	_, err = Publish(ctx, srv, e.manager, name, 2, false, func() server.Object {
		return demo.NewService()
	})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, srv.UnregisterService(ctx, name))
	}()

	app := e.connect(t, 3)
	s, err := app.GetService(ctx, name, message.ProtocolCmif)
	require.NoError(t, err)
	defer s.Close()
	sum, err := demo.NewClient(s).Add(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)
}
