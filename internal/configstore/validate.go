package configstore

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

var (
	endpointSchemeRe = regexp.MustCompile(`^wss?://`)
	serviceNameRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
	identifierRe     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)
	templateVarRe    = regexp.MustCompile(`"\{\{([^}]*)\}\}"|\{\{([^}]*)\}\}`)
)

// ValidationError collects every violation found while validating a
// Config, so callers see the whole picture in one round trip rather than
// fixing one problem at a time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed (%d problem(s)): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// validate checks cfg against every invariant in spec.md §4.1 and §3,
// collecting all problems before returning. The returned error is always
// a *gwerrors.Error so callers (the HTTP layer in particular) can map it
// to a status code without caring which invariant tripped; kind is
// chosen by the first category of problem found, endpoints taking
// priority since a malformed endpoint URL is the one case spec.md §7
// names a specific Kind for.
func validate(cfg *models.Config) error {
	verr := &ValidationError{}
	kind := gwerrors.ConfigurationError
	setKind := func(k gwerrors.Kind) {
		if kind == gwerrors.ConfigurationError {
			kind = k
		}
	}

	for _, ep := range cfg.Endpoints {
		if !endpointSchemeRe.MatchString(ep) {
			verr.add("endpoint %q must use ws:// or wss://", ep)
			setKind(gwerrors.InvalidEndpoint)
		}
	}

	for name, svc := range cfg.Services {
		if !serviceNameRe.MatchString(name) {
			verr.add("service name %q must match [A-Za-z0-9_-]{1,50}", name)
			setKind(gwerrors.InvalidServiceName)
		}
		if name == models.ReservedCustomServiceName {
			verr.add("service name %q is reserved for custom tools", name)
			setKind(gwerrors.InvalidServiceName)
		}
		switch svc.Kind {
		case models.ServiceStdio:
			if strings.TrimSpace(svc.Command) == "" {
				verr.add("stdio service %q requires a command", name)
			}
		case models.ServiceSSE, models.ServiceStreamableHTTP:
			if !isAbsoluteURL(svc.URL) {
				verr.add("remote service %q requires a parseable absolute URL, got %q", name, svc.URL)
			}
		default:
			verr.add("service %q has unknown kind %q", name, svc.Kind)
		}
	}

	for toolName := range cfg.Tools {
		if !resolvesToolName(cfg, toolName) {
			verr.add("tool %q does not resolve to any configured service or custom tool", toolName)
		}
	}

	seenCustom := make(map[string]bool, len(cfg.CustomTools))
	for _, ct := range cfg.CustomTools {
		if !identifierRe.MatchString(ct.Name) {
			verr.add("custom tool name %q must match [A-Za-z][A-Za-z0-9_]{0,62}", ct.Name)
		}
		if seenCustom[ct.Name] {
			verr.add("custom tool name %q is duplicated", ct.Name)
		}
		seenCustom[ct.Name] = true

		if t, _ := ct.InputSchema["type"].(string); t != "object" {
			verr.add("custom tool %q inputSchema.type must be \"object\"", ct.Name)
		}

		if body, ok := ct.Handler.Config["bodyTemplate"]; ok {
			if err := validateBodyTemplate(body); err != nil {
				verr.add("custom tool %q bodyTemplate invalid: %v", ct.Name, err)
			}
		}
	}

	if len(verr.Problems) > 0 {
		return gwerrors.New(kind, verr.Error()).WithDetails(verr.Problems)
	}
	return nil
}

// resolvesToolName implements the §3 Config invariant: every tools key
// either matches <serviceName>__<toolName> for a configured service, or
// names a customTools entry.
func resolvesToolName(cfg *models.Config, namespacedName string) bool {
	for svcName := range cfg.Services {
		if strings.HasPrefix(namespacedName, svcName+"__") {
			return true
		}
	}
	for _, ct := range cfg.CustomTools {
		if ct.Name == namespacedName {
			return true
		}
	}
	return false
}

func isAbsoluteURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// validateBodyTemplate requires the template to be well-formed JSON once
// every {{var}} placeholder is substituted with a JSON string literal (a
// placeholder that is a whole JSON string, "{{var}}", is replaced quotes
// and all), and that every placeholder name is a valid identifier.
func validateBodyTemplate(raw interface{}) error {
	tmpl, ok := raw.(string)
	if !ok {
		return fmt.Errorf("bodyTemplate must be a string")
	}

	for _, m := range templateVarRe.FindAllStringSubmatch(tmpl, -1) {
		name := strings.TrimSpace(m[1] + m[2])
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("placeholder {{%s}} is not a valid identifier", name)
		}
	}

	substituted := templateVarRe.ReplaceAllString(tmpl, `"__placeholder__"`)
	var js json.RawMessage
	if err := json.Unmarshal([]byte(substituted), &js); err != nil {
		return fmt.Errorf("not valid JSON once placeholders are substituted: %w", err)
	}
	return nil
}
