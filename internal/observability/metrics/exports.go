package metrics

import (
	"maps"
	"time"

	obserrors "github.com/ourresearch/openalex-formatter/internal/observability/errors"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Export lifecycle transitions.
const (
	TransitionClaim  = "claim"
	TransitionFinish = "finish"
	TransitionFail   = "fail"
	TransitionEmail  = "email"
)

// ExportMetric captures one export lifecycle event for metric emission.
type ExportMetric struct {
	Format     string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitExportLifecycle emits standardised export lifecycle metrics.
func EmitExportLifecycle(sink statsd.Sink, in ExportMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Format != "" {
		tags["format"] = in.Format
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("export.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("export.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	maps.Copy(out, src)
	delete(out, "")
	return out
}
