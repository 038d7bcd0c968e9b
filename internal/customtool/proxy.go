package customtool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

// callTimeout bounds one custom-tool HTTP round trip.
const callTimeout = 30 * time.Second

// templateVarRe matches a {{var}} placeholder, together with its quotes
// when the placeholder is a whole JSON string ("{{var}}").
var templateVarRe = regexp.MustCompile(`"\{\{([^}]*)\}\}"|\{\{([^}]*)\}\}`)

// CredentialResolver resolves a named platform's stored credentials.
// Implemented by internal/configstore.Store; kept as a narrow interface
// here so this package has no dependency on configstore's full surface.
type CredentialResolver interface {
	GetPlatformCredentials(name string) (map[string]string, bool)
}

// Proxy executes CustomTool invocations against external HTTP APIs.
type Proxy struct {
	creds  CredentialResolver
	client *http.Client
}

// New constructs a Proxy resolving platform credentials through creds.
func New(creds CredentialResolver) *Proxy {
	return &Proxy{creds: creds, client: &http.Client{Timeout: callTimeout}}
}

// Invoke validates args against tool.InputSchema, resolves the handler
// platform's credentials, renders the body template, and POSTs it,
// returning the platform-specified result field.
func (p *Proxy) Invoke(ctx context.Context, tool models.CustomTool, args map[string]interface{}) (json.RawMessage, error) {
	if problems := ValidateArgs(tool.InputSchema, args); len(problems) > 0 {
		return nil, gwerrors.New(gwerrors.InvalidArguments, strings.Join(problems, "; ")).
			WithDetails(problems)
	}

	creds, ok := p.creds.GetPlatformCredentials(tool.Handler.Platform)
	if !ok {
		return nil, gwerrors.Newf(gwerrors.ConfigurationError, "no credentials configured for platform %q", tool.Handler.Platform)
	}
	token, ok := creds["token"]
	if !ok || token == "" {
		return nil, gwerrors.Newf(gwerrors.ConfigurationError, "platform %q has no token credential configured", tool.Handler.Platform)
	}

	endpoint, _ := tool.Handler.Config["endpoint"].(string)
	if endpoint == "" {
		return nil, gwerrors.Newf(gwerrors.ConfigurationError, "custom tool %q has no handler endpoint configured", tool.Name)
	}

	body, err := renderBody(tool.Handler.Config, args)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ConfigurationError, fmt.Sprintf("render body template for %q", tool.Name), err)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InternalError, "build custom tool request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, gwerrors.Wrap(gwerrors.CallTimeout, fmt.Sprintf("custom tool %q timed out", tool.Name), err)
		}
		return nil, gwerrors.Wrap(gwerrors.ExternalApiError, fmt.Sprintf("custom tool %q request failed", tool.Name), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ExternalApiError, fmt.Sprintf("read custom tool %q response", tool.Name), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(respBody)
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		return nil, gwerrors.New(gwerrors.ExternalApiError, fmt.Sprintf("custom tool %q upstream returned HTTP %d", tool.Name, resp.StatusCode)).
			WithDetails(map[string]interface{}{"status": resp.StatusCode, "body": excerpt})
	}

	return extractResultField(tool.Handler.Config, respBody)
}

// renderBody substitutes {{var}} placeholders in the platform's
// bodyTemplate with JSON-encoded values from args (a placeholder that is
// a whole JSON string, "{{var}}", is replaced quotes and all), then
// validates the result is well-formed JSON.
func renderBody(handlerConfig map[string]interface{}, args map[string]interface{}) ([]byte, error) {
	raw, ok := handlerConfig["bodyTemplate"]
	if !ok {
		return json.Marshal(args)
	}
	tmpl, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("bodyTemplate must be a string")
	}

	rendered := templateVarRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		m := templateVarRe.FindStringSubmatch(match)
		name := strings.TrimSpace(m[1] + m[2])
		value, present := args[name]
		if !present {
			return "null"
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return "null"
		}
		return string(encoded)
	})

	var js json.RawMessage
	if err := json.Unmarshal([]byte(rendered), &js); err != nil {
		return nil, fmt.Errorf("rendered body is not valid JSON: %w", err)
	}
	return []byte(rendered), nil
}

// extractResultField pulls handlerConfig["resultField"] (a dotted path
// like "data.output") out of the decoded response, or returns the whole
// body if no field is configured.
func extractResultField(handlerConfig map[string]interface{}, body []byte) (json.RawMessage, error) {
	fieldPath, _ := handlerConfig["resultField"].(string)
	if fieldPath == "" {
		return body, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response for resultField extraction: %w", err)
	}

	cur := decoded
	for _, segment := range strings.Split(fieldPath, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("resultField %q does not resolve against the response shape", fieldPath)
		}
		cur, ok = obj[segment]
		if !ok {
			return nil, fmt.Errorf("resultField %q not present in response", fieldPath)
		}
	}

	return json.Marshal(cur)
}
