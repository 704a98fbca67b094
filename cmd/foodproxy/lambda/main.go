package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"

	"foodproxy"
	"foodproxy/gate"
	"foodproxy/pipeline"
	"foodproxy/recognize"
	"foodproxy/upstream/bedrock"
)

// lambdaConfig is the subset of the HTTP server settings that matters here;
// there is no inbound transport, so no listen address or proxy secret.
type lambdaConfig struct {
	MaxImageBytes int64  `env:"MAX_IMAGE_SIZE_BYTES,default=5242880"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
}

type Params struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	UserComment string `json:"user_comment"`
	Locale      string `json:"locale"`
}

type Results struct {
	StatusCode int `json:"statusCode"`
	Response   any `json:"response"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var cfg lambdaConfig
		if err := envdecode.Decode(&cfg); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}
		slog.SetDefault(foodproxy.NewLogger(cfg.LogLevel))

		var bedrockConfig foodproxy.BedrockConfig
		if err := envdecode.Decode(&bedrockConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		var gateConfig foodproxy.GateConfig
		if err := envdecode.Decode(&gateConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}
		if err := gateConfig.Validate(); err != nil {
			return Results{}, fmt.Errorf("invalid gate thresholds: %w", err)
		}

		image, err := base64.StdEncoding.DecodeString(params.ImageBase64)
		if err != nil {
			return Results{}, fmt.Errorf("failed to decode image payload: %w", err)
		}

		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to create Bedrock client", "error", err)
			return Results{}, err
		}
		llm := bedrock.NewClient(brc)

		checker, err := gate.NewChecker(llm, bedrockConfig.GateModelOrDefault())
		if err != nil {
			slog.Error("SETUP: Failed to create gate checker", "error", err)
			return Results{}, err
		}

		recognizer, err := recognize.NewRecognizer(llm, bedrockConfig.ModelID)
		if err != nil {
			slog.Error("SETUP: Failed to create recognizer", "error", err)
			return Results{}, err
		}

		pipe := pipeline.New(checker, recognizer, pipeline.DefaultDescriptors(), pipeline.Config{
			Thresholds: pipeline.Thresholds{
				Min: gateConfig.MinConfidence,
				Med: gateConfig.MedConfidence,
			},
			MaxImageBytes: cfg.MaxImageBytes,
		}, foodproxy.NewStdoutRequestLogger())

		locale := params.Locale
		if locale == "" {
			locale = "ru"
		}

		rc := foodproxy.RequestContext{TraceID: foodproxy.NewTraceID()}
		res := pipe.Run(ctx, rc, pipeline.Input{
			Image:       image,
			MimeType:    params.MimeType,
			UserComment: params.UserComment,
			Locale:      locale,
		})

		if res.Success != nil {
			return Results{StatusCode: res.HTTPStatus, Response: res.Success}, nil
		}
		return Results{StatusCode: res.HTTPStatus, Response: res.Error}, nil
	}

	lambda.Start(fn)
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
