package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/tracing"
	"github.com/loggy-dev/loggy-go/internal/shared/id"
)

// traceparentInfo is the printable form of a parsed header.
type traceparentInfo struct {
	Traceparent string `json:"traceparent" yaml:"traceparent"`
	TraceID     string `json:"traceId" yaml:"traceId"`
	SpanID      string `json:"spanId" yaml:"spanId"`
	TraceFlags  string `json:"traceFlags" yaml:"traceFlags"`
	Sampled     bool   `json:"sampled" yaml:"sampled"`
}

func newTraceparentInfo(sc tracing.SpanContext) traceparentInfo {
	return traceparentInfo{
		Traceparent: tracing.FormatTraceparent(sc),
		TraceID:     sc.TraceIDString(),
		SpanID:      sc.SpanIDString(),
		TraceFlags:  sc.TraceFlags.String(),
		Sampled:     sc.IsSampled(),
	}
}

func (i traceparentInfo) text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "traceparent: %s\ntrace id:    %s\nspan id:     %s\nflags:       %s (sampled=%t)\n",
		i.Traceparent, i.TraceID, i.SpanID, i.TraceFlags, i.Sampled)
	return err
}

func newTraceparentCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traceparent",
		Short: "Trace context helpers",
		Long:  "Commands for creating and inspecting W3C traceparent headers.",
	}

	var unsampled bool
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Print a fresh root traceparent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := tracing.SpanContext{
				TraceID:    id.Default().TraceID(),
				SpanID:     id.Default().SpanID(),
				TraceFlags: trace.FlagsSampled,
			}
			if unsampled {
				sc.TraceFlags = 0
			}
			info := newTraceparentInfo(sc)
			return g.print(cmd.OutOrStdout(), info, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, info.Traceparent)
				return err
			})
		},
	}
	newCmd.Flags().BoolVar(&unsampled, "unsampled", false, "Clear the sampled flag")

	parseCmd := &cobra.Command{
		Use:   "parse <header>",
		Short: "Validate and decode a traceparent header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, ok := tracing.ParseTraceparent(args[0])
			if !ok {
				return errors.New("invalid traceparent")
			}
			info := newTraceparentInfo(sc)
			return g.print(cmd.OutOrStdout(), info, info.text)
		},
	}

	cmd.AddCommand(newCmd, parseCmd)
	return cmd
}
