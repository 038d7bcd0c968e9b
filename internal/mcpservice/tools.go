package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpbridge/gateway/pkg/models"
)

// toolsListResult is the decoded shape of a tools/list response result.
type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// fetchTools calls tools/list and converts the result into namespaced
// Tool entries the service manager can merge into its registry.
func (s *Service) fetchTools(ctx context.Context, tp transport) ([]models.Tool, error) {
	result, err := tp.call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var parsed toolsListResult
	if err := json.Unmarshal(result.raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}

	out := make([]models.Tool, 0, len(parsed.Tools))
	for _, td := range parsed.Tools {
		out = append(out, models.Tool{
			NamespacedName: models.NamespacedName(s.name, td.Name),
			ServiceName:    s.name,
			OriginalName:   td.Name,
			Description:    td.Description,
			InputSchema:    td.InputSchema,
			Enabled:        true,
		})
	}
	return out, nil
}
