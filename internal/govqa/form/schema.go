package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"govqa/internal/govqa/fields"

	"github.com/antzucaro/matchr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is the json schema of the values a form accepts.
type Schema struct {
	Type                 string                     `json:"type"`
	Properties           map[string]fields.Property `json:"properties"`
	Required             []string                   `json:"required"`
	AdditionalProperties bool                       `json:"additionalProperties"`
}

const schemaUrl = "govqa://form.schema.json"

func buildSchema(list []fields.Field, captcha bool) Schema {
	schema := Schema{
		Type:       "object",
		Properties: map[string]fields.Property{},
		Required:   []string{},
	}
	for _, f := range list {
		schema.Properties[f.Label()] = f.Property()
		schema.Required = append(schema.Required, f.Label())
	}
	if captcha {
		schema.Properties[fields.CaptchaLabel] = fields.Property{Type: "string"}
		schema.Required = append(schema.Required, fields.CaptchaLabel)
	}
	return schema
}

func compileSchema(schema Schema) (*jsonschema.Schema, error) {
	document, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	err = compiler.AddResource(schemaUrl, bytes.NewReader(document))
	if err != nil {
		return nil, err
	}
	return compiler.Compile(schemaUrl)
}

func leafMessages(err *jsonschema.ValidationError, out *[]string) {
	if len(err.Causes) == 0 {
		where := strings.TrimPrefix(err.InstanceLocation, "/")
		if where == "" {
			*out = append(*out, err.Message)
			return
		}
		*out = append(*out, fmt.Sprintf("%s: %s", where, err.Message))
		return
	}
	for _, cause := range err.Causes {
		leafMessages(cause, out)
	}
}

// closest returns the candidate most similar to value.
func closest(value string, candidates []string) string {
	best := ""
	bestScore := -1.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(strings.ToLower(value), strings.ToLower(c), false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// validate checks values against the form's schema and suggests corrections
// for unknown keys and values outside an enum.
func (f *Form) validate(values map[string]string) error {
	instance := make(map[string]any, len(values))
	for k, v := range values {
		instance[k] = v
	}

	err := f.compiled.Validate(instance)
	if err == nil {
		return nil
	}
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}

	var messages []string
	leafMessages(validationErr, &messages)

	suggestions := map[string]string{}
	labels := f.Fields()
	if _, ok := f.schema.Properties[fields.CaptchaLabel]; ok {
		labels = append(labels, fields.CaptchaLabel)
	}
	for key, value := range values {
		field, ok := f.byLabel[key]
		if !ok {
			if key != fields.CaptchaLabel {
				suggestions[key] = closest(key, labels)
			}
			continue
		}
		enumerated, ok := field.(fields.Enumerated)
		if !ok {
			continue
		}
		options := enumerated.Options()
		if !slices.Contains(options, value) {
			suggestions[value] = closest(value, options)
		}
	}

	return &SchemaError{
		FormValidationError: FormValidationError{
			Message:  strings.Join(messages, "; "),
			Messages: messages,
		},
		Suggestions: suggestions,
		cause:       err,
	}
}
