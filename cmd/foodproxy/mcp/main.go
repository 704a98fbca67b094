// Command mcp exposes food recognition as an MCP tool over stdio so agent
// hosts can call the pipeline without going through the HTTP surface.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/joeshaw/envdecode"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"foodproxy"
	"foodproxy/gate"
	"foodproxy/pipeline"
	"foodproxy/recognize"
	"foodproxy/upstream/openrouter"
)

type recognizeArgs struct {
	ImageBase64 string `json:"image_base64" jsonschema:"base64-encoded image payload"`
	MimeType    string `json:"mime_type" jsonschema:"image MIME type (image/jpeg or image/png)"`
	UserComment string `json:"user_comment,omitempty" jsonschema:"optional note about the dish, e.g. portion weight"`
	Locale      string `json:"locale,omitempty" jsonschema:"response locale, ru or en (default ru)"`
}

type mcpConfig struct {
	MaxImageBytes int64  `env:"MAX_IMAGE_SIZE_BYTES,default=5242880"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
}

func main() {
	ctx := context.Background()

	var cfg mcpConfig
	if err := envdecode.Decode(&cfg); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}
	slog.SetDefault(foodproxy.NewLogger(cfg.LogLevel))

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

	llm, err := openrouter.NewClient(openrouter.ClientOpts{
		BaseURL:    upstreamConfig.BaseURL,
		APIKey:     upstreamConfig.APIKey,
		Referer:    upstreamConfig.Referer,
		AppTitle:   upstreamConfig.AppTitle,
		HTTPClient: http.DefaultClient,
	})
	if err != nil {
		log.Fatalf("SETUP: Failed to create LLM client: %s", err)
	}

	checker, err := gate.NewChecker(llm, upstreamConfig.GateModelOrDefault())
	if err != nil {
		log.Fatalf("SETUP: Failed to create gate checker: %s", err)
	}

	recognizer, err := recognize.NewRecognizer(llm, upstreamConfig.Model)
	if err != nil {
		log.Fatalf("SETUP: Failed to create recognizer: %s", err)
	}

	pipe := pipeline.New(checker, recognizer, pipeline.DefaultDescriptors(), pipeline.Config{
		Thresholds: pipeline.Thresholds{
			Min: gateConfig.MinConfidence,
			Med: gateConfig.MedConfidence,
		},
		MaxImageBytes: cfg.MaxImageBytes,
	}, foodproxy.NewStdoutRequestLogger())

	server := mcp.NewServer(&mcp.Implementation{Name: "foodproxy", Version: "v0.1.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recognize_food",
		Description: "Recognize a meal photo and estimate per-item and total nutrition (kcal, protein, fat, carbohydrates).",
	}, recognizeHandler(pipe))

	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		log.Fatalf("SERVER: MCP server exited: %s", err)
	}
}

func recognizeHandler(pipe *pipeline.Pipeline) func(context.Context, *mcp.ServerSession, *mcp.CallToolParamsFor[recognizeArgs]) (*mcp.CallToolResultFor[any], error) {
	return func(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[recognizeArgs]) (*mcp.CallToolResultFor[any], error) {
		args := params.Arguments

		image, err := base64.StdEncoding.DecodeString(args.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}

		locale := args.Locale
		if locale == "" {
			locale = "ru"
		}

		rc := foodproxy.RequestContext{TraceID: foodproxy.NewTraceID()}
		res := pipe.Run(ctx, rc, pipeline.Input{
			Image:       image,
			MimeType:    args.MimeType,
			UserComment: args.UserComment,
			Locale:      locale,
		})

		var envelope any = res.Success
		if res.Error != nil {
			envelope = res.Error
		}
		body, err := json.Marshal(envelope)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
			IsError: res.Error != nil,
		}, nil
	}
}
