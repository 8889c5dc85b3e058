package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/glimte/nativebridge/bridge"
	"github.com/glimte/nativebridge/contracts"
	"github.com/spf13/cobra"
)

func newInvokeCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "invoke <command> [json-args]",
		Short: "Invoke a command on the native side and print its result",
		Example: `  bridgectl invoke ping
  bridgectl invoke activateWindow '{"name":"settings"}' --timeout 5s`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}

			client, err := a.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			var opts []bridge.CallOption
			if timeout > 0 {
				opts = append(opts, bridge.WithTimeout(timeout))
			}

			result, err := client.Invoke(cmd.Context(), args[0], callArgs, opts...)
			if err != nil {
				return describeCallError(err)
			}
			return printJSON(cmd.OutOrStdout(), result, !raw)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "call timeout (default bridge.default_timeout)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the result without indentation")
	return cmd
}

// parseArgs returns the optional JSON argument, nil when absent
func parseArgs(args []string) (json.RawMessage, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, nil
	}
	if !json.Valid([]byte(args[0])) {
		return nil, fmt.Errorf("arguments are not valid JSON: %s", truncate(args[0], 60))
	}
	return json.RawMessage(args[0]), nil
}

// describeCallError turns bridge failures into one-line CLI errors
func describeCallError(err error) error {
	var nativeErr *contracts.NativeError
	switch {
	case errors.As(err, &nativeErr):
		return fmt.Errorf("native side failed with code %d: %s", nativeErr.Code, nativeErr.Message)
	case errors.Is(err, contracts.ErrTimeout):
		return fmt.Errorf("%w (is a native host consuming the queue?)", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted")
	}
	return err
}

func printJSON(w io.Writer, data json.RawMessage, indent bool) error {
	if !indent {
		_, err := fmt.Fprintln(w, string(data))
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
