package widget

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const configurationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": true,
	"definitions": {
		"color": {"type": "string", "minLength": 1},
		"appearance": {
			"type": "object",
			"required": ["type"],
			"properties": {
				"type": {"enum": ["solid", "gradient", "none"]},
				"solidColor": {"$ref": "#/definitions/color"},
				"gradientStart": {"$ref": "#/definitions/color"},
				"gradientEnd": {"$ref": "#/definitions/color"}
			},
			"allOf": [
				{
					"if": {"properties": {"type": {"const": "gradient"}}},
					"then": {"required": ["gradientStart", "gradientEnd"]}
				},
				{
					"if": {"properties": {"type": {"const": "solid"}}},
					"then": {"required": ["solidColor"]}
				}
			]
		},
		"questions": {"type": "array", "items": {"type": "string"}}
	},
	"properties": {
		"title": {"type": ["string", "null"]},
		"placeholder": {"type": ["string", "null"]},
		"collapsedText": {"type": ["string", "null"]},
		"brandingText": {"type": ["string", "null"]},
		"systemPrompt": {"type": ["string", "null"]},
		"autoScroll": {"type": ["boolean", "null"]},
		"streaming": {"type": ["boolean", "null"]},
		"defaultExpanded": {"type": ["boolean", "null"]},
		"border": {"$ref": "#/definitions/appearance"},
		"background": {"$ref": "#/definitions/appearance"},
		"text": {"$ref": "#/definitions/appearance"},
		"width": {"type": "integer", "exclusiveMinimum": 0},
		"height": {"type": "integer", "exclusiveMinimum": 0},
		"carouselIntervalMs": {"type": "integer", "minimum": 1000},
		"categories": {"$ref": "#/definitions/questions"},
		"seedQuestions": {"$ref": "#/definitions/questions"},
		"seedQuestionsRow1": {"$ref": "#/definitions/questions"},
		"seedQuestionsRow2": {"$ref": "#/definitions/questions"}
	}
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(configurationSchema))
	})
	return schema, schemaErr
}

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a configuration.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks cfg against the configuration schema. It returns a
// *ValidationError when cfg is well-formed JSON that breaks the schema.
func Validate(cfg Configuration) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile configuration schema: %w", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Fields = append(verr.Fields, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return verr
}
