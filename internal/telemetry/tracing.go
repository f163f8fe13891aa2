package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configura o provider de tracing.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Writer recebe os spans exportados; nil usa os.Stderr para não
	// misturar com a saída JSON dos comandos.
	Writer io.Writer
	Pretty bool
}

// Setup instala um TracerProvider global que exporta spans via stdouttrace.
// O shutdown devolvido faz flush dos spans pendentes.
func Setup(opts Options) (func(context.Context) error, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(writer)}
	if opts.Pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider.Shutdown, nil
}
