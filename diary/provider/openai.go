package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// NewClient builds an OpenAI client with SDK-level retries disabled.
func NewClient(apiKey string, opts ...option.RequestOption) openai.Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return openai.NewClient(append(base, opts...)...)
}

// Complete sends one Responses API request bounded by timeout (no bound when timeout <= 0).
// Failures are returned as-is, classified in the message; nothing is retried.
func Complete(ctx context.Context, client *openai.Client, params responses.ResponseNewParams, timeout time.Duration) (*responses.Response, error) {
	if client == nil {
		return nil, errors.New("Complete: client is nil")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := client.Responses.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("completion timed out after %s: %w", timeout, ctxErr)
			}
			return nil, fmt.Errorf("completion canceled: %w", ctxErr)
		}
		switch {
		case isRateLimitError(err):
			return nil, fmt.Errorf("completion rate limited: %w", err)
		case isServerError(err):
			return nil, fmt.Errorf("completion server error: %w", err)
		}
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	return resp, nil
}

// statusCode extracts the HTTP status from an API error, or 0 when err carries none.
func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if statusCode(err) == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func isServerError(err error) bool {
	if code := statusCode(err); code != 0 {
		return code >= http.StatusInternalServerError
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "server_error")
}

// GenerateSchema reflects T into a strict JSON schema: every property required, no extras.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schemaObj, err := schemaToMap(reflector.Reflect(v))
	if err != nil {
		panic(err)
	}
	ensureStrict(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

func ensureStrict(schema map[string]any) {
	properties, hasProps := schema[propertiesKey].(map[string]any)
	if t, ok := schema[typeKey].(string); ok && t == "object" {
		schema[additionalPropertiesKey] = false
		if hasProps && len(properties) > 0 {
			required := make([]string, 0, len(properties))
			for name := range properties {
				required = append(required, name)
			}
			schema[requiredKey] = required
		}
	}
	for _, prop := range properties {
		if m, ok := prop.(map[string]any); ok {
			ensureStrict(m)
		}
	}
	if items, ok := schema[itemsKey].(map[string]any); ok {
		ensureStrict(items)
	}
}
