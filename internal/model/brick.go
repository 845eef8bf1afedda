// Package model defines the knowledge brick data types.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BrickType classifies a brick. The set is closed: unknown values are
// rejected at write time.
type BrickType string

const (
	TypeIntent           BrickType = "Intent"
	TypeConstraint       BrickType = "Constraint"
	TypeKnowledge        BrickType = "Knowledge"
	TypeMedicalProtocol  BrickType = "MedicalProtocol"
	TypeAuthorizedAdvice BrickType = "AuthorizedAdvice"
	TypeStyleGuide       BrickType = "StyleGuide"

	// Domain subtypes.
	TypeDiagnostic  BrickType = "Diagnostic"
	TypeTherapeutic BrickType = "Therapeutic"
	TypeProtocol    BrickType = "Protocol"
)

// ValidTypes are the recognized brick types.
var ValidTypes = map[BrickType]bool{
	TypeIntent:           true,
	TypeConstraint:       true,
	TypeKnowledge:        true,
	TypeMedicalProtocol:  true,
	TypeAuthorizedAdvice: true,
	TypeStyleGuide:       true,
	TypeDiagnostic:       true,
	TypeTherapeutic:      true,
	TypeProtocol:         true,
}

const (
	MinWeight = 0
	MaxWeight = 10
)

// ErrValidation is the sentinel every ValidationError unwraps to.
var ErrValidation = errors.New("validation error")

// ValidationError reports a missing or invalid field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Brick is an atomic, typed unit of knowledge.
type Brick struct {
	ID       string          `json:"id"`
	Type     BrickType       `json:"type"`
	Title    string          `json:"title"`
	Tags     []string        `json:"tags"`
	Content  json.RawMessage `json:"content"`
	Metadata Metadata        `json:"metadata"`
}

// Metadata holds the system-managed and authorization fields of a brick.
type Metadata struct {
	CreatedAt          time.Time  `json:"createdAt"`
	LastValidated      time.Time  `json:"lastValidated"`
	LastAccessed       *time.Time `json:"lastAccessed,omitempty"`
	IsAuthorized       bool       `json:"isAuthorized"`
	AuthorizedBy       string     `json:"authorizedBy,omitempty"`
	Version            int        `json:"version"`
	SynapticWeight     int        `json:"synapticWeight"`
	AccessCount        int        `json:"accessCount,omitempty"`
	ResponsibilityHash string     `json:"responsibilityHash,omitempty"`
}

// Draft is the caller-supplied part of a new brick.
type Draft struct {
	Type           BrickType
	Title          string
	Tags           []string
	Content        json.RawMessage
	SynapticWeight int
	// IsAuthorized defaults to true when nil.
	IsAuthorized *bool
}

// Patch lists the fields an update replaces. Nil fields are left alone.
type Patch struct {
	Type           *BrickType
	Title          *string
	Tags           *[]string
	Content        json.RawMessage
	SynapticWeight *int
	IsAuthorized   *bool
	AuthorizedBy   *string
}

// ParseType validates s as a brick type. Matching is exact.
func ParseType(s string) (BrickType, error) {
	t := BrickType(s)
	if !ValidTypes[t] {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unrecognized brick type %q", s)}
	}
	return t, nil
}

// TextContent encodes a plain string as brick content.
func TextContent(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// ContentText returns the string form of c: the string itself for JSON
// strings, compact JSON for anything else.
func ContentText(c json.RawMessage) string {
	var s string
	if err := json.Unmarshal(c, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, c); err != nil {
		return string(c)
	}
	return buf.String()
}

// CanonicalContent returns c compacted and HTML-escaped, which is the form
// encoding/json writes a RawMessage in, so content survives a save and load
// byte for byte. Invalid JSON is returned unchanged.
func CanonicalContent(c json.RawMessage) json.RawMessage {
	var compact bytes.Buffer
	if err := json.Compact(&compact, c); err != nil {
		return c
	}
	var buf bytes.Buffer
	json.HTMLEscape(&buf, compact.Bytes())
	return buf.Bytes()
}

// IsEmptyContent reports whether c carries no usable payload.
func IsEmptyContent(c json.RawMessage) bool {
	trimmed := bytes.TrimSpace(c)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "{}", "[]":
		return true
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ClampWeight bounds a synaptic weight to [MinWeight, MaxWeight].
func ClampWeight(w int) int {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// NormalizeTags trims tags and drops empties and duplicates, keeping the
// first occurrence.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Validate checks the fields every stored brick must carry.
func (b *Brick) Validate() error {
	if !ValidTypes[b.Type] {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unrecognized brick type %q", b.Type)}
	}
	if strings.TrimSpace(b.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if IsEmptyContent(b.Content) {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if !json.Valid(b.Content) {
		return &ValidationError{Field: "content", Reason: "must be valid JSON"}
	}
	return nil
}

// Validate checks a draft before the store assigns system fields.
func (d *Draft) Validate() error {
	b := Brick{Type: d.Type, Title: d.Title, Content: d.Content}
	return b.Validate()
}

// HasTag reports whether the brick carries tag.
func (b *Brick) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with the store.
func (b Brick) Clone() Brick {
	c := b
	if b.Tags != nil {
		c.Tags = make([]string, len(b.Tags))
		copy(c.Tags, b.Tags)
	}
	if b.Content != nil {
		c.Content = make(json.RawMessage, len(b.Content))
		copy(c.Content, b.Content)
	}
	if b.Metadata.LastAccessed != nil {
		t := *b.Metadata.LastAccessed
		c.Metadata.LastAccessed = &t
	}
	return c
}
