package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"nx-ipc/codec"
	"nx-ipc/demo"
	"nx-ipc/message"
	"nx-ipc/protocol"
)

func newDissectCmd(a *app) *cobra.Command {
	var (
		proto   string
		dump    bool
		example bool
	)
	cmd := &cobra.Command{
		Use:   "dissect [hex...]",
		Short: "Decode a raw message buffer",
		Long:  "dissect decodes a hex-encoded IPC message given as arguments or on stdin. Whitespace is ignored. With --example it decodes a demo Add request built on the spot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProtocol(proto)
			if err != nil {
				return err
			}
			var msg []byte
			if example {
				msg, err = exampleRequest(p)
			} else {
				msg, err = readHex(cmd.InOrStdin(), args)
			}
			if err != nil {
				return err
			}

			d, err := codec.Dissect(msg, p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dump {
				spew.Fdump(out, d)
				return nil
			}
			_, err = fmt.Fprint(out, d.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&proto, "protocol", "p", "cmif", "message dialect: cmif or tipc")
	cmd.Flags().BoolVar(&dump, "dump", false, "print every field of the decoded message")
	cmd.Flags().BoolVar(&example, "example", false, "dissect a generated demo Add request")
	return cmd
}

func parseProtocol(s string) (message.Protocol, error) {
	switch strings.ToLower(s) {
	case "cmif":
		return message.ProtocolCmif, nil
	case "tipc":
		return message.ProtocolTipc, nil
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

func readHex(stdin io.Reader, args []string) ([]byte, error) {
	text := strings.Join(args, "")
	if len(args) == 0 {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		text = string(b)
	}
	text = strings.Join(strings.Fields(text), "")
	msg, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	// Short captures are padded to a full buffer so trailing reads stay in range.
	if len(msg) < protocol.MessageBufferSize {
		msg = append(msg, make([]byte, protocol.MessageBufferSize-len(msg))...)
	}
	return msg, nil
}

// exampleRequest lays out demo Add(20, 22) with a process id, the way a
// client would.
func exampleRequest(p message.Protocol) ([]byte, error) {
	msg := make([]byte, protocol.MessageBufferSize)
	ctx := message.NewClientContext(message.FromHandle(1).WithProtocol(p), nil)
	defer ctx.Release()
	ctx.Message = msg
	in := []message.Encoder{message.ProcessID(), message.Data(uint32(20)), message.Data(uint32(22))}

	size, err := message.ReserveAll(ctx, in)
	if err != nil {
		return nil, err
	}
	ctx.In.DataSize = size
	if err := codec.GetCodec(p).WriteRequest(ctx, demo.CmdAdd); err != nil {
		return nil, err
	}
	if err := message.EncodeAll(ctx, msg[ctx.In.DataOffset:], in); err != nil {
		return nil, err
	}
	return msg, nil
}
