package geoloc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/model"
)

const tracerName = "github.com/signalsfoundry/geoloc/internal/geoloc"

// startSpan starts a child span annotated with the scene and area.
func startSpan(ctx context.Context, name string, md *model.Metadata, area model.Area, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	attrs := make([]attribute.KeyValue, 0, len(extra)+4)
	if md != nil {
		attrs = append(attrs,
			attribute.String("platform", md.Platform),
			attribute.String("scene", md.SceneID),
		)
	}
	if area != nil {
		attrs = append(attrs, attribute.String("area", area.AreaID()))
	}
	if id := logging.JobIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("job_id", id))
	}
	attrs = append(attrs, extra...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
