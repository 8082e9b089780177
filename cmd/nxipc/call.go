package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nx-ipc/demo"
	"nx-ipc/message"
	"nx-ipc/sm"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		domain  bool
		payload string
	)
	cmd := &cobra.Command{
		Use:   "call [a] [b]",
		Short: "Start sm and the demo service, then call the demo service through sm",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			operands := [2]uint32{20, 22}
			for i, arg := range args {
				n, err := strconv.ParseUint(arg, 0, 32)
				if err != nil {
					return fmt.Errorf("operand %q: %w", arg, err)
				}
				operands[i] = uint32(n)
			}
			return call(cmd.Context(), a, cmd.OutOrStdout(), callOptions{
				a:       operands[0],
				b:       operands[1],
				domain:  domain,
				payload: payload,
			})
		},
	}
	cmd.Flags().BoolVar(&domain, "domain", false, "convert the session to a domain before calling")
	cmd.Flags().StringVar(&payload, "echo", "hello", "payload sent through the echo commands")
	return cmd
}

type callOptions struct {
	a, b    uint32
	domain  bool
	payload string
}

func call(ctx context.Context, a *app, out io.Writer, opts callOptions) error {
	s, err := newStack(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.manager.Serve(ctx)
	})
	g.Go(func() error {
		defer cancel()
		if err := s.publishDemo(ctx); err != nil {
			return err
		}
		return roundTrip(ctx, s, out, opts)
	})
	return g.Wait()
}

func roundTrip(ctx context.Context, s *stack, out io.Writer, opts callOptions) error {
	smc, err := sm.Connect(ctx, s.client(s.cfg.ProcessID))
	if err != nil {
		return fmt.Errorf("connect sm: %w", err)
	}
	defer smc.Close()

	session, err := smc.GetService(ctx, demo.ServiceName, message.ProtocolCmif)
	if err != nil {
		return fmt.Errorf("get %s: %w", demo.ServiceName, err)
	}
	defer session.Close()
	if opts.domain {
		if err := session.ConvertToDomain(ctx); err != nil {
			return err
		}
	}
	c := demo.NewClient(session)

	sum, err := c.Add(ctx, opts.a, opts.b)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	fmt.Fprintf(out, "add(%d, %d) = %d\n", opts.a, opts.b, sum)

	buf := make([]byte, len(opts.payload))
	n, err := c.EchoAuto(ctx, []byte(opts.payload), buf)
	if err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	fmt.Fprintf(out, "echo(%q) = %q\n", opts.payload, buf[:n])

	counter, err := c.OpenCounter(ctx)
	if err != nil {
		return fmt.Errorf("open counter: %w", err)
	}
	defer counter.Close()
	for range 3 {
		if _, err := counter.Increment(ctx); err != nil {
			return fmt.Errorf("increment: %w", err)
		}
	}
	total, err := counter.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "counter = %d (domain object %d)\n", total, counter.Info().DomainObjectID)

	limit, err := c.Limit(ctx)
	if err != nil {
		return fmt.Errorf("limit: %w", err)
	}
	fmt.Fprintf(out, "limit = %#x\n", limit)

	d, err := c.Describe(ctx)
	if err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	fmt.Fprintf(out, "server %d.%d.%d, %d counters, %d calls\n", d.Major, d.Minor, d.Micro, d.Counters, d.Calls)
	return nil
}
