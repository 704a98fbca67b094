// Package bedrock implements the upstream.Completer contract on the AWS
// Bedrock Converse API for deployments that keep inference inside AWS.
// Retries are delegated to the SDK's built-in retryer.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"foodproxy/upstream"
)

type runtimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Client struct {
	brc runtimeClient
}

func NewClient(brc runtimeClient) *Client {
	return &Client{brc: brc}
}

// Complete sends the prompt and image as one user turn and returns the
// model's textual completion.
func (c *Client) Complete(ctx context.Context, req upstream.Request) (string, error) {
	format, err := imageFormat(req.MimeType)
	if err != nil {
		return "", &upstream.Error{Kind: upstream.KindProtocol, Message: err.Error()}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	msg := types.Message{
		Role: types.ConversationRoleUser,
		Content: []types.ContentBlock{
			&types.ContentBlockMemberText{Value: req.Prompt},
			&types.ContentBlockMemberImage{Value: types.ImageBlock{
				Format: format,
				Source: &types.ImageSourceMemberBytes{Value: req.Image},
			}},
		},
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: []types.Message{msg},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("BEDROCK: Converse failed", "error", err)
		return "", classify(err)
	}

	if out.Usage != nil {
		slog.Info("BEDROCK: Converse succeeded",
			"stop_reason", out.StopReason,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}

	text := textFromOutput(out)
	if text == "" {
		return "", &upstream.Error{Kind: upstream.KindProtocol, Message: "Converse output carried no text"}
	}
	return text, nil
}

func imageFormat(mimeType string) (types.ImageFormat, error) {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, nil
	case "image/png":
		return types.ImageFormatPng, nil
	default:
		return "", fmt.Errorf("unsupported image mime type: %s", mimeType)
	}
}

func classify(err error) *upstream.Error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return &upstream.Error{Kind: upstream.KindRateLimit, Message: "Bedrock throttled the request", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &upstream.Error{Kind: upstream.KindTimeout, Message: "Converse timed out", Err: err}
	}
	return &upstream.Error{Kind: upstream.KindNetwork, Message: "Converse failed", Err: err}
}

// textFromOutput joins the text blocks of the output message, preferring the
// last block that looks like a single JSON object.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	if len(texts) == 0 {
		return ""
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}
