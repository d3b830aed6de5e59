// Package status exposes server statistics over HTTP. The report is a
// google.protobuf.Struct, sent as JSON by default or as binary protobuf
// when the client accepts application/x-protobuf.
package status

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/lean-server/core"
	"github.com/searchktools/lean-server/core/http"
	"github.com/searchktools/lean-server/core/observability"
)

// Content types
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// Source is what the report is built from. *core.Engine implements it.
type Source interface {
	Stats() core.Stats
	Monitor() *observability.Monitor
}

// New returns the status handler.
func New(src Source) http.HandlerFunc {
	return func(c *http.Context) error {
		report, err := Report(src)
		if err != nil {
			return err
		}

		if acceptsProtobuf(c.Header("Accept")) {
			data, err := proto.Marshal(report)
			if err != nil {
				return fmt.Errorf("status: marshal protobuf: %w", err)
			}
			return c.Data(http.StatusOK, ContentTypeProtobuf, data)
		}

		opts := protojson.MarshalOptions{}
		if c.Query("pretty") != "" {
			opts.Multiline = true
			opts.Indent = "  "
		}
		data, err := opts.Marshal(report)
		if err != nil {
			return fmt.Errorf("status: marshal json: %w", err)
		}
		return c.Data(http.StatusOK, ContentTypeJSON, data)
	}
}

func acceptsProtobuf(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(mt), ContentTypeProtobuf) {
			return true
		}
	}
	return false
}

// Report builds the status document.
func Report(src Source) (*structpb.Struct, error) {
	stats := src.Stats()
	snap := stats.Monitor

	classes := make(map[string]any, len(snap.StatusClasses))
	for class, n := range snap.StatusClasses {
		classes[class] = n
	}

	routes := make([]any, 0, len(snap.Routes))
	for _, r := range snap.Routes {
		routes = append(routes, map[string]any{
			"route":  r.Route,
			"count":  r.Count,
			"errors": r.Errors,
			"avg_ms": millis(r.AvgDuration),
			"min_ms": millis(r.MinDuration),
			"max_ms": millis(r.MaxDuration),
		})
	}

	bottlenecks := make([]any, 0)
	for _, b := range src.Monitor().Bottlenecks() {
		bottlenecks = append(bottlenecks, map[string]any{
			"type":     b.Type,
			"location": b.Location,
			"severity": b.Severity,
			"impact":   b.Impact,
			"details":  b.Details,
		})
	}

	report, err := structpb.NewStruct(map[string]any{
		"uptime_seconds": snap.Uptime.Seconds(),
		"connections": map[string]any{
			"live":     stats.Connections,
			"tracked":  stats.Tracked,
			"accepted": snap.Accepted,
			"rejected": snap.Rejected,
			"closed":   snap.Closed,
		},
		"protocol_errors": snap.ProtocolErrors,
		"requests":        snap.Requests,
		"status_classes":  classes,
		"routes":          routes,
		"bottlenecks":     bottlenecks,
		"runtime": map[string]any{
			"goroutines":  stats.GC.NumGoroutine,
			"heap_bytes":  stats.GC.AllocBytes,
			"gc_cycles":   stats.GC.NumGC,
			"gc_pause_ms": millis(stats.GC.PauseTotal),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("status: build report: %w", err)
	}
	return report, nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
