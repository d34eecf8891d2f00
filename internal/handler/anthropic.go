package handler

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/weft-dsl/weft/pkg/models"
)

// DefaultMaxTokens caps completions when the payload does not set a limit.
const DefaultMaxTokens = 8192

// AnthropicConfig contains configuration for the Anthropic handler.
type AnthropicConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
}

// AnthropicHandler implements Handler against the Anthropic Messages API.
type AnthropicHandler struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewAnthropicHandler creates a handler for the configured provider path.
func NewAnthropicHandler(cfg AnthropicConfig) (*AnthropicHandler, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &AnthropicHandler{
		inner: anthropic.NewClient(opts...),
		model: model,
	}, nil
}

// Model returns the configured model name.
func (h *AnthropicHandler) Model() anthropic.Model {
	return h.model
}

// ExecutePrompt performs one Messages API call and maps the response onto a
// TaskResult. Usage is recorded in notes, never in content.
func (h *AnthropicHandler) ExecutePrompt(ctx context.Context, payload *Payload) (*models.TaskResult, error) {
	maxTokens := payload.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	userText := payload.Prompt
	if payload.Context != "" {
		userText = payload.Context + "\n\n" + payload.Prompt
	}

	params := anthropic.MessageNewParams{
		Model:     h.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
	}
	if payload.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: payload.System}}
	}

	resp, err := h.inner.Messages.New(ctx, params)
	if err != nil {
		failure := models.NewTaskFailure(models.ReasonLLMError, "anthropic call failed")
		failure.Err = err
		return nil, failure
	}

	var content string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	result := &models.TaskResult{
		Content: content,
		Status:  models.StatusComplete,
	}
	result.Note("model", string(h.model))
	result.Note("input_tokens", resp.Usage.InputTokens)
	result.Note("output_tokens", resp.Usage.OutputTokens)
	result.Note("stop_reason", string(resp.StopReason))
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		result.Status = models.StatusContinuation
	}
	return result, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Verify AnthropicHandler implements Handler at compile time.
var _ Handler = (*AnthropicHandler)(nil)
