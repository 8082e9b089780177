package codec

import (
	"testing"

	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// benchmarkRoundTrip lays out a request, reads it back as the server, then
// replies and reads the reply, without a kernel in between.
func benchmarkRoundTrip(b *testing.B, p message.Protocol) {
	msg := make([]byte, protocol.MessageBufferSize)
	input := make([]byte, 0x100)
	c := GetCodec(p)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cc := message.NewClientContext(message.FromHandle(1).WithProtocol(p), nil)
		cc.Message = msg
		in := []message.Encoder{message.Data(uint32(1)), message.Data(uint32(2)), message.InMapAlias(input)}
		size, err := message.ReserveAll(cc, in)
		if err != nil {
			b.Fatal(err)
		}
		cc.In.DataSize = size
		if err := c.WriteRequest(cc, 7); err != nil {
			b.Fatal(err)
		}
		if err := message.EncodeAll(cc, msg[cc.In.DataOffset:], in); err != nil {
			b.Fatal(err)
		}

		sc := message.NewServerContext(message.FromHandle(2).WithProtocol(p), nil)
		sc.Message = msg
		var x, y uint32
		req, err := c.ReadRequest(sc)
		if err != nil {
			b.Fatal(err)
		}
		if err := message.DecodeAll(sc, msg[sc.In.DataOffset:], []message.Decoder{message.DataTo(&x), message.DataTo(&y), message.InMapAlias(nil)}); err != nil {
			b.Fatal(err)
		}
		out := []message.Encoder{message.Data(uint64(x + y))}
		if size, err = message.ReserveAll(sc, out); err != nil {
			b.Fatal(err)
		}
		sc.Out.DataSize = size
		if err := c.WriteResponse(sc, req, result.Success); err != nil {
			b.Fatal(err)
		}
		if err := message.EncodeAll(sc, msg[sc.Out.DataOffset:], out); err != nil {
			b.Fatal(err)
		}

		var sum uint64
		decoders := []message.Decoder{message.DataTo(&sum)}
		cc.Out.DataSize = message.RawSize(decoders)
		if err := c.ReadResponse(cc); err != nil {
			b.Fatal(err)
		}
		if err := message.DecodeAll(cc, msg[cc.Out.DataOffset:], decoders); err != nil {
			b.Fatal(err)
		}
		cc.Release()
	}
}

func BenchmarkCmifRoundTrip(b *testing.B) {
	benchmarkRoundTrip(b, message.ProtocolCmif)
}

func BenchmarkTipcRoundTrip(b *testing.B) {
	benchmarkRoundTrip(b, message.ProtocolTipc)
}
