package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
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
	if strings.ToLower(serverConfig.LogLevel) == "debug" {
		foodproxy.Dump(gateConfig)
	}

	audit, cleanup, err := newRequestLogger(upstreamConfig.Model)
	if err != nil {
		slog.Error("SETUP: Failed to create request logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush request log", "error", err)
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
	pipe := pipeline.New(checker, recognizer, descriptors, pipeline.Config{
		Thresholds: pipeline.Thresholds{
			Min: gateConfig.MinConfidence,
			Med: gateConfig.MedConfidence,
		},
		MaxImageBytes: serverConfig.MaxImageBytes,
	}, audit)

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

func newRequestLogger(model string) (foodproxy.RequestLogger, func() error, error) {
	logFilePath := foodproxy.NewRequestLogFilePath(model)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := foodproxy.NewFileRequestLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
