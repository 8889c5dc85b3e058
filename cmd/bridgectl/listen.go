package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newListenCmd(a *app) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "listen <event>...",
		Short: "Print events emitted by the native side",
		Long:  "Subscribe to one or more events and print each notification until interrupted.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := a.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			printer := &eventPrinter{w: cmd.OutOrStdout(), limit: count, done: stop}
			for _, event := range args {
				client.On(event, printer.handler(event))
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening for %v... Press Ctrl+C to stop\n", args)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many events (0 means never)")
	return cmd
}

// eventPrinter writes one line per event and stops after limit events
type eventPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	seen  int
	limit int
	done  func()
}

func (p *eventPrinter) handler(event string) func(context.Context, json.RawMessage) error {
	return func(ctx context.Context, data json.RawMessage) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.limit > 0 && p.seen >= p.limit {
			return nil
		}
		p.seen++
		fmt.Fprintf(p.w, "%s %-20s %s\n", time.Now().Format(time.TimeOnly), event, string(data))
		if p.limit > 0 && p.seen == p.limit && p.done != nil {
			p.done()
		}
		return nil
	}
}
