package domain

import "fmt"

// Level grades a diagnostic. Only LevelError blocks storage.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Code identifies a diagnostic kind.
type Code string

// Structural codes.
const (
	CodeMissingField    Code = "MissingField"
	CodeInvalidEnum     Code = "InvalidEnum"
	CodeInvalidType     Code = "InvalidType"
	CodeSchemaViolation Code = "SchemaViolation"
	CodeTooDeep         Code = "TooDeep"
	CodeTooLarge        Code = "TooLarge"
	CodeHashMismatch    Code = "HashMismatch"
	CodeSchemaNotFound  Code = "SchemaNotFound"
	CodeSchemaMalformed Code = "SchemaMalformed"
)

// Duplicate codes.
const (
	CodeExactDuplicate      Code = "ExactDuplicate"
	CodeIdentifierCollision Code = "IdentifierCollision"
)

// Advisory codes.
const (
	CodeFormatMismatch      Code = "FormatMismatch"
	CodeSimilarContentFound Code = "SimilarContentFound"
	CodeLookupUnavailable   Code = "LookupUnavailable"
	CodeContentQuality      Code = "ContentQuality"
	CodeSkipped             Code = "Skipped"
)

// Check names, in pipeline order.
const (
	CheckSafety         = "safety"
	CheckRequiredFields = "required_fields"
	CheckEnums          = "enums"
	CheckIDFormat       = "unique_id_format"
	CheckSchema         = "schema"
	CheckContentHash    = "content_hash"
	CheckContentQuality = "content_quality"
	CheckExactDuplicate = "exact_duplicate"
	CheckSimilarity     = "similarity"
	CheckIDCollision    = "unique_id_collision"
)

// Diagnostic is one finding produced by a check.
type Diagnostic struct {
	Check   string `json:"check"`
	Code    Code   `json:"code"`
	Level   Level  `json:"level"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

func NewError(check string, code Code, message string) Diagnostic {
	return Diagnostic{Check: check, Code: code, Level: LevelError, Message: message}
}

func NewWarning(check string, code Code, message string) Diagnostic {
	return Diagnostic{Check: check, Code: code, Level: LevelWarning, Message: message}
}

func NewInfo(check string, code Code, message string) Diagnostic {
	return Diagnostic{Check: check, Code: code, Level: LevelInfo, Message: message}
}

// Diagnostics is an ordered list of findings.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic blocks storage.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// ByLevel renders diagnostics of the given level as "Code: message" strings.
func (ds Diagnostics) ByLevel(level Level) []string {
	out := make([]string, 0)
	for _, d := range ds {
		if d.Level == level {
			out = append(out, d.String())
		}
	}
	return out
}

// HasCode reports whether a diagnostic with code is present.
func (ds Diagnostics) HasCode(code Code) bool {
	for _, d := range ds {
		if d.Code == code {
			return true
		}
	}
	return false
}
