package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrNoJSON is returned when the model reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object found in model response")

// ErrSchemaViolation is returned when the extracted JSON does not satisfy
// the dispatch response contract.
var ErrSchemaViolation = errors.New("model response violates dispatch schema")

// responseSchema is the strict contract for the model's dispatch reply.
// Anything that fails validation takes the deterministic fallback path
// instead of being silently patched up.
const responseSchema = `{
	"type": "object",
	"required": ["prioritized_jobs"],
	"properties": {
		"prioritized_jobs": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["job_id"],
				"properties": {
					"job_id": {"type": "string", "minLength": 1},
					"rank": {"type": "integer", "minimum": 1},
					"scheduled_slot": {"type": "string"},
					"reason": {"type": "string"}
				}
			}
		},
		"scheduling_constraints": {"type": "object"},
		"recommendations": {
			"type": "array",
			"items": {"type": "string"}
		},
		"agent_reasoning": {"type": "string"}
	}
}`

var compiledSchema = gojsonschema.NewSchemaLoader()

var schema = func() *gojsonschema.Schema {
	s, err := compiledSchema.Compile(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		panic(fmt.Sprintf("dispatch: invalid response schema: %v", err))
	}
	return s
}()

// ParseResponse extracts the JSON object from a free-text model reply and
// validates it against the response contract. Missing optional fields are
// defaulted; any extraction or validation failure returns an error so the
// caller can take the named fallback path.
func ParseResponse(content string) (*Result, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	docLoader := gojsonschema.NewStringLoader(raw)
	validation, err := schema.Validate(docLoader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !validation.Valid() {
		msgs := make([]string, 0, len(validation.Errors()))
		for _, verr := range validation.Errors() {
			msgs = append(msgs, verr.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	applyDefaults(&result)
	return &result, nil
}

// extractJSON locates the outermost JSON object in free text. Models wrap
// replies in prose or code fences more often than not.
func extractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSON
	}
	return content[start : end+1], nil
}

func applyDefaults(r *Result) {
	for i := range r.PrioritizedJobs {
		if r.PrioritizedJobs[i].Rank == 0 {
			r.PrioritizedJobs[i].Rank = i + 1
		}
	}
	if r.SchedulingConstraints == nil {
		r.SchedulingConstraints = map[string]any{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	if r.AgentReasoning == "" {
		r.AgentReasoning = "No reasoning provided"
	}
}
