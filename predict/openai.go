// Package predict provides Predictor implementations for the orchestration
// core: an OpenAI-backed model client, a deterministic rule engine and a
// fallback wrapper combining the two.
package predict

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ecoguardian/ecoguardian"
)

// GenerateSchema reflects a JSON schema for structured model output.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// interventionList is the structured-output envelope the model fills in.
type interventionList struct {
	Interventions []ecoguardian.Intervention `json:"interventions"`
}

const systemPrompt = `You are an environmental intervention planner.
Given a city's air quality reading you recommend concrete eco-interventions.
Each intervention needs a name, description, category, expected impact,
implementation timeline, priority level (High, Medium or Low) and a
confidence score between 0 and 100. Categories must be one of: air_quality,
greening, transport, industry, energy, monitoring, temperature, humidity,
stagnant_air. Recommend at least five interventions and address every issue
listed in the reading.`

// Client is an OpenAI-backed Predictor. Transport failures surface as
// ErrUnavailable so callers can retry or trip a breaker; unparseable model
// output is a ValidationError and is never retried.
type Client struct {
	model  string
	client *openai.Client
}

func NewClient(apiKey string, baseURL string, model string) *Client {
	var client *openai.Client
	if baseURL != "" {
		client = openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(apiKey))
	} else {
		client = openai.NewClient(option.WithAPIKey(apiKey))
	}
	return &Client{model: model, client: client}
}

func (c *Client) Predict(ctx context.Context, reading ecoguardian.Reading) (ecoguardian.Prediction, error) {
	readingJSON, err := json.Marshal(reading)
	if err != nil {
		return ecoguardian.Prediction{}, fmt.Errorf("encode reading: %w", err)
	}

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        openai.F("interventionList"),
		Description: openai.F("Recommended eco-interventions for the given reading"),
		Schema:      openai.F(GenerateSchema[interventionList]()),
		Strict:      openai.F(true),
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Current reading:\n%s", readingJSON)),
		}),
		Model: openai.F(c.model),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONSchemaParam{
				Type:       openai.F(openai.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(schemaParam),
			},
		),
	})
	if err != nil {
		return ecoguardian.Prediction{}, fmt.Errorf("chat completion: %v: %w", err, ecoguardian.ErrUnavailable)
	}
	if len(completion.Choices) == 0 {
		return ecoguardian.Prediction{}, fmt.Errorf("empty completion: %w", ecoguardian.ErrUnavailable)
	}

	var list interventionList
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &list); err != nil {
		return ecoguardian.Prediction{}, &ecoguardian.ValidationError{
			Field: "completion", Reason: fmt.Sprintf("model output is not valid JSON: %v", err)}
	}
	if len(list.Interventions) == 0 {
		return ecoguardian.Prediction{}, &ecoguardian.ValidationError{
			Field: "interventions", Reason: "model returned no interventions"}
	}

	return ecoguardian.Prediction{
		City:          reading.City,
		Interventions: list.Interventions,
		Model:         c.model,
	}, nil
}
