package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"foodproxy"
	"foodproxy/gate"
	"foodproxy/pipeline"
	"foodproxy/recognize"
	"foodproxy/server"
	"foodproxy/upstream/openrouter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serverConfig foodproxy.ServerConfig
	if err := envdecode.Decode(&serverConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}
	slog.SetDefault(foodproxy.NewLogger(serverConfig.LogLevel))

	var upstreamConfig foodproxy.UpstreamConfig
	if err := envdecode.Decode(&upstreamConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var gateConfig foodproxy.GateConfig
	if err := envdecode.Decode(&gateConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}
	if err := gateConfig.Validate(); err != nil {
		log.Fatalf("SETUP: Invalid gate thresholds: %s", err)
	}

	tracerProvider, meterProvider, otelShutdown, err := foodproxy.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	llm, err := openrouter.NewClient(openrouter.ClientOpts{
		BaseURL:    upstreamConfig.BaseURL,
		APIKey:     upstreamConfig.APIKey,
		Referer:    upstreamConfig.Referer,
		AppTitle:   upstreamConfig.AppTitle,
		HTTPClient: http.DefaultClient,
	})
	if err != nil {
		slog.Error("SETUP: Failed to create LLM client", "error", err)
		return
	}

	checker, err := gate.NewChecker(llm, upstreamConfig.GateModelOrDefault())
	if err != nil {
		slog.Error("SETUP: Failed to create gate checker", "error", err)
		return
	}

	recognizer, err := recognize.NewRecognizer(llm, upstreamConfig.Model)
	if err != nil {
		slog.Error("SETUP: Failed to create recognizer", "error", err)
		return
	}

	descriptors := pipeline.DefaultDescriptors()
	inner := pipeline.New(checker, recognizer, descriptors, pipeline.Config{
		Thresholds: pipeline.Thresholds{
			Min: gateConfig.MinConfidence,
			Med: gateConfig.MedConfidence,
		},
		MaxImageBytes: serverConfig.MaxImageBytes,
	}, foodproxy.NewStdoutRequestLogger())

	tracer := tracerProvider.Tracer(foodproxy.TracerNamePipeline)
	meter := meterProvider.Meter(foodproxy.TracerNamePipeline)
	pipe := pipeline.NewInstrumented(inner, tracer, meter)

	srv := server.New(serverConfig, pipe, descriptors)

	httpServer := &http.Server{
		Addr:              serverConfig.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("SETUP: Listening", "addr", serverConfig.Addr, "model", upstreamConfig.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("SERVER: ListenAndServe failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("SERVER: Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("SERVER: Shutdown failed", "error", err)
	}
}
