package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installTestProvider(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestStartComponentSpan_RecordsSuccess(t *testing.T) {
	recorder := installTestProvider(t)

	_, end := StartComponentSpan(context.Background(), "scheduler")
	end(nil)

	spans := recorder.Ended()
	assert.Len(t, spans, 1)
	assert.Equal(t, "component.tick", spans[0].Name())
	found := false
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "component" && attr.Value.AsString() == "scheduler" {
			found = true
		}
	}
	assert.True(t, found, "expected component attribute on span")
}

func TestStartComponentSpan_RecordsError(t *testing.T) {
	recorder := installTestProvider(t)

	_, end := StartComponentSpan(context.Background(), "worker")
	end(errors.New("boom"))

	spans := recorder.Ended()
	assert.Len(t, spans, 1)
	assert.NotEmpty(t, spans[0].Events())
}

func TestStartEntitySpan_SetsEntityAttributes(t *testing.T) {
	recorder := installTestProvider(t)

	_, end := StartEntitySpan(context.Background(), "publish_attempt", "publication_log", "log-1")
	end(nil)

	spans := recorder.Ended()
	assert.Len(t, spans, 1)
	assert.Equal(t, "publish_attempt", spans[0].Name())
}
