package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names.
const (
	TemplateCatalogSchema = "template-catalog"
	EngineSnapshotSchema  = "engine-snapshot"
	TrackingEventSchema   = "tracking-event"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// SchemaValidator checks catalog imports, persisted snapshots and tracking
// envelopes against JSON schemas before they reach the engine.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema)}
}

// NewDefaultSchemaValidator returns a validator loaded with the built-in schemas.
func NewDefaultSchemaValidator() (*SchemaValidator, error) {
	sv := NewSchemaValidator()
	if err := sv.LoadFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadFS compiles every *.json file in dir, naming each schema after its file.
func (sv *SchemaValidator) LoadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to list schemas in %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return fmt.Errorf("failed to compile schema %s: %w", entry.Name(), err)
		}
		sv.schemas[strings.TrimSuffix(entry.Name(), ".json")] = schema
	}
	return nil
}

// Names lists the loaded schemas in sorted order.
func (sv *SchemaValidator) Names() []string {
	names := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sv *SchemaValidator) Has(name string) bool {
	_, ok := sv.schemas[name]
	return ok
}

func (sv *SchemaValidator) ValidateCatalog(doc interface{}) *ValidationResult {
	return sv.validate(TemplateCatalogSchema, doc)
}

func (sv *SchemaValidator) ValidateSnapshot(doc interface{}) *ValidationResult {
	return sv.validate(EngineSnapshotSchema, doc)
}

func (sv *SchemaValidator) ValidateTrackingEvent(doc interface{}) *ValidationResult {
	return sv.validate(TrackingEventSchema, doc)
}

// validate accepts raw JSON as string or []byte; anything else is marshalled first.
func (sv *SchemaValidator) validate(name string, doc interface{}) *ValidationResult {
	schema, ok := sv.schemas[name]
	if !ok {
		return failed(name, fmt.Sprintf("schema %q is not loaded", name), CodeSchemaNotFound)
	}

	var loader gojsonschema.JSONLoader
	switch v := doc.(type) {
	case string:
		loader = gojsonschema.NewStringLoader(v)
	case []byte:
		loader = gojsonschema.NewBytesLoader(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return failed("document", err.Error(), CodeMarshal)
		}
		loader = gojsonschema.NewBytesLoader(raw)
	}

	res, err := schema.Validate(loader)
	if err != nil {
		return failed("document", err.Error(), CodeMalformed)
	}

	out := &ValidationResult{Valid: res.Valid()}
	for _, re := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    CodeViolation,
			Value:   re.Value(),
		})
	}
	return out
}

// Validation error codes.
const (
	CodeSchemaNotFound = "SCHEMA_NOT_FOUND"
	CodeMarshal        = "JSON_MARSHAL_ERROR"
	CodeMalformed      = "MALFORMED_DOCUMENT"
	CodeViolation      = "SCHEMA_VIOLATION"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

func failed(field, message, code string) *ValidationResult {
	return &ValidationResult{Errors: []ValidationError{{Field: field, Message: message, Code: code}}}
}

// Err flattens an invalid result into a single error, nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	if len(vr.Errors) == 0 {
		return fmt.Errorf("validation failed")
	}
	return fmt.Errorf("%d validation error(s), first: %w", len(vr.Errors), vr.Errors[0])
}
