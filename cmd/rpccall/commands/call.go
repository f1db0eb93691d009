package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"mini-jsonrpc/client"
	"mini-jsonrpc/config"
	"mini-jsonrpc/logging"
)

// CallCmd creates the call command.
func CallCmd() *cobra.Command {
	var (
		endpoint    string
		timeout     time.Duration
		pretty      bool
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "call method [args...]",
		Short: "Call a method and print its result as JSON",
		Long: `Call a method and print its result as JSON.

Each argument is parsed as JSON; anything that is not valid JSON is sent as a string:

  rpccall call searchProduct car 10      # params ["car",10]
  rpccall call Arith.Add '{"A":1,"B":2}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(ConfigPath, func(c *config.Config) {
				if endpoint != "" {
					c.Endpoint = endpoint
				}
				if cmd.Flags().Changed("timeout") {
					c.Timeout = timeout
				}
				if LogLevel != "" {
					c.LogLevel = LogLevel
				}
			})
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			stack, err := BuildClient(cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			result, callErr := stack.Client.Invoke(cmd.Context(), args[0], ParseArgs(args[1:])...)

			if showMetrics {
				if err := writeMetrics(cmd.ErrOrStderr(), stack); err != nil {
					return err
				}
			}
			if callErr != nil {
				var resolveErr *client.ResolveError
				if errors.As(callErr, &resolveErr) && resolveErr.Kind == client.RemoteFault {
					fmt.Fprintf(cmd.ErrOrStderr(), "fault: %s\n", resolveErr.Raw)
				}
				return callErr
			}
			return writeResult(cmd.OutOrStdout(), result, pretty)
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Server URL, overrides config and JSONRPC_ENDPOINT")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Per-attempt timeout")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON result")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print call metrics to stderr")

	return cmd
}

// ParseArgs turns command line words into call arguments. Valid JSON is decoded with
// numbers kept exact; anything else is taken as a string.
func ParseArgs(words []string) []any {
	args := make([]any, 0, len(words))
	for _, w := range words {
		dec := json.NewDecoder(bytes.NewReader([]byte(w)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			args = append(args, w)
			continue
		}
		args = append(args, v)
	}
	return args
}

func writeResult(w io.Writer, result any, pretty bool) error {
	var (
		out []byte
		err error
	)
	if pretty {
		out, err = json.MarshalIndent(result, "", "  ")
	} else {
		out, err = json.Marshal(result)
	}
	if err != nil {
		return errors.Wrap(err, "format result")
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func writeMetrics(w io.Writer, stack *Stack) error {
	families, err := stack.Metrics.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
