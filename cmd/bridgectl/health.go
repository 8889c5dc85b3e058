package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glimte/nativebridge/internal/rabbitmq"
	"github.com/glimte/nativebridge/monitor"
	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	var (
		endpoint string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check bridge health",
		Long: `Connect as the front-end and run the transport, ping and circuit checks.
With --endpoint, query the health endpoint of a running "bridgectl serve"
instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Health.Timeout+a.cfg.Bridge.DefaultTimeout)
			defer cancel()

			var (
				health monitor.OverallHealth
				err    error
			)
			if endpoint != "" {
				health, err = fetchHealth(ctx, endpoint)
			} else {
				health, err = a.localHealth(ctx)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(health); err != nil {
					return err
				}
			} else {
				printHealth(cmd.OutOrStdout(), health)
			}

			if health.Status == monitor.StatusUnhealthy {
				return fmt.Errorf("bridge is unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "health URL of a running host, e.g. http://localhost:8081/health")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON result")
	return cmd
}

func (a *app) localHealth(ctx context.Context) (monitor.OverallHealth, error) {
	client, err := a.newClient()
	if err != nil {
		return monitor.OverallHealth{}, err
	}
	defer client.Close()

	client.HealthRegistry().SetMetadata("url", rabbitmq.SanitizeURL(a.cfg.AMQP.URL))
	return client.Health(ctx), nil
}

func fetchHealth(ctx context.Context, endpoint string) (monitor.OverallHealth, error) {
	var health monitor.OverallHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return health, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return health, fmt.Errorf("query %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	// 503 still carries a report
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return health, fmt.Errorf("query %s: unexpected status %s", endpoint, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return health, fmt.Errorf("decode health report: %w", err)
	}
	return health, nil
}

func printHealth(w io.Writer, health monitor.OverallHealth) {
	fmt.Fprintf(w, "Bridge Health: %s (%s)\n", strings.ToUpper(string(health.Status)), health.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "%-20s %-10s %-10s %s\n", "Check", "Status", "Took", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, name := range health.Names() {
		check := health.Checks[name]
		msg := check.Message
		if check.Error != "" {
			msg += ": " + check.Error
		}
		fmt.Fprintf(w, "%-20s %-10s %-10s %s\n",
			truncate(name, 20),
			check.Status,
			check.Duration.Round(time.Millisecond),
			truncate(msg, 60),
		)
	}
}
