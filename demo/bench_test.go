package demo

import (
	"context"
	"testing"

	"nx-ipc/client"
	"nx-ipc/message"
	"nx-ipc/server"
	"nx-ipc/transport"
)

func setupBench(b *testing.B, p message.Protocol, workers int) *Client {
	k := transport.NewLoopback(transport.WithProcessID(testPID))
	m := server.NewManager(k, server.WithVersion(LimitCutover), server.WithWorkers(workers))
	h, err := m.RegisterSession(NewService(), p)
	if err != nil {
		b.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Serve(ctx)
	}()
	b.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			b.Error(err)
		}
	})

	c := client.NewClient(k, client.WithVersion(LimitCutover), client.WithBufferPool(transport.NewBufferPool(16)))
	return NewClient(c.Open(message.FromHandle(h).WithProtocol(p)).WithName(ServiceName))
}

// One caller, one request in flight.
func BenchmarkSerialAdd(b *testing.B) {
	for _, p := range []message.Protocol{message.ProtocolCmif, message.ProtocolTipc} {
		b.Run(p.String(), func(b *testing.B) {
			c := setupBench(b, p, 1)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Add(ctx, 1, 2); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Many callers share one session; the server runs several workers.
func BenchmarkConcurrentAdd(b *testing.B) {
	c := setupBench(b, message.ProtocolCmif, 4)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Add(ctx, 1, 2); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkEchoAuto(b *testing.B) {
	c := setupBench(b, message.ProtocolCmif, 1)
	ctx := context.Background()
	in, out := make([]byte, 0x80), make([]byte, 0x80)
	b.SetBytes(int64(len(in)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.EchoAuto(ctx, in, out); err != nil {
			b.Fatal(err)
		}
	}
}
