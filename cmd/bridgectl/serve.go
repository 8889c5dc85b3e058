package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/glimte/nativebridge/host"
	"github.com/glimte/nativebridge/monitor"
	rabbitmqTransport "github.com/glimte/nativebridge/transports/rabbitmq"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		tick    time.Duration
		noHTTP  bool
		windows []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo native host",
		Long: `Run the native side of the bridge with a small window manager behind
it. It answers ping, getWindows, activateWindow and quit, emits
windowActivated events and serves its health over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			transport, err := rabbitmqTransport.NewTransport(a.cfg.AMQP.URL, a.transportOptions(rabbitmqTransport.RoleNative)...)
			if err != nil {
				return err
			}
			defer transport.Close()

			srv, err := host.NewServer(transport,
				host.WithServerLogger(a.logger),
				host.WithCommandTimeout(a.cfg.Host.CommandTimeout),
			)
			if err != nil {
				return err
			}

			desk := newDesktop(windows...)
			if err := desk.register(srv, stop); err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop()

			if tick > 0 {
				go emitTicks(ctx, srv, tick)
			}

			if !noHTTP {
				registry := monitor.NewRegistry()
				registry.Register(monitor.NewTransportChecker("broker", transport))
				registry.Register(monitor.NewRuntimeChecker(1000, 10000))
				registry.SetMetadata("role", string(rabbitmqTransport.RoleNative))
				registry.SetMetadata("commands", srv.Commands())

				httpSrv := &http.Server{
					Addr:              a.cfg.Health.Listen,
					Handler:           healthMux(registry, a.cfg.Health.Timeout),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("health endpoint failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = httpSrv.Shutdown(shutdownCtx)
				}()
				a.logger.Info("health endpoint listening", "addr", a.cfg.Health.Listen)
			}

			a.logger.Info("native host running", "commands", srv.Commands(), "queue", transport.ConsumeQueue())
			<-ctx.Done()
			a.logger.Info("native host stopping")
			return nil
		},
	}

	cmd.Flags().DurationVar(&tick, "tick", 0, "emit a tick event at this interval (0 disables)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not serve the health endpoint")
	cmd.Flags().StringSliceVar(&windows, "window", []string{"main", "settings"}, "windows the demo host manages")
	return cmd
}

func healthMux(registry *monitor.Registry, timeout time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", monitor.NewHandler(registry, timeout))
	return mux
}

func emitTicks(ctx context.Context, srv *host.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = srv.Emit(ctx, "tick", map[string]interface{}{"n": n, "time": now.UnixMilli()})
		}
	}
}

// desktop is the demo native state the host commands act on
type desktop struct {
	mu      sync.Mutex
	windows map[string]bool
	active  string
}

func newDesktop(names ...string) *desktop {
	d := &desktop{windows: make(map[string]bool, len(names))}
	for _, name := range names {
		d.windows[name] = true
	}
	if len(names) > 0 {
		d.active = names[0]
	}
	return d
}

type windowInfo struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (d *desktop) list() []windowInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]windowInfo, 0, len(d.windows))
	for name := range d.windows {
		out = append(out, windowInfo{Name: name, Active: name == d.active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *desktop) activate(name string) (previous string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.windows[name] {
		return "", host.NewCommandError(40401, fmt.Sprintf("no window named %q", name))
	}
	previous, d.active = d.active, name
	return previous, nil
}

func (d *desktop) register(srv *host.Server, quit func()) error {
	if err := srv.HandleFunc("getWindows", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return d.list(), nil
	}); err != nil {
		return err
	}

	if err := srv.HandleFunc("activateWindow", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &req); err != nil || req.Name == "" {
			return nil, host.BadRequest("activateWindow needs {\"name\": string}")
		}
		previous, err := d.activate(req.Name)
		if err != nil {
			return nil, err
		}
		if err := srv.Emit(ctx, "windowActivated", map[string]string{"name": req.Name, "previous": previous}); err != nil {
			return nil, err
		}
		return map[string]string{"active": req.Name}, nil
	}); err != nil {
		return err
	}

	return srv.HandleFunc("quit", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		// let the reply go out before shutting down
		time.AfterFunc(100*time.Millisecond, quit)
		return map[string]bool{"quitting": true}, nil
	})
}
