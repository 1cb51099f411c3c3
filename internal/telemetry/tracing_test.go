package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), Config{SampleRatio: 1}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := Tracer("test").Start(context.Background(), "work")
	End(span, errors.New("boom"), attribute.Int("pages", 3))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "work", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.Int("pages", 3))
	require.Equal(t, InstrumentationName+"/test", spans[0].InstrumentationScope().Name)
}

func TestInitTracerProviderRejectsBadRatio(t *testing.T) {
	t.Parallel()

	_, err := InitTracerProvider(context.Background(), Config{SampleRatio: 2})
	require.Error(t, err)
}
