// Package pages is the destination store for imported rows: a tree of pages,
// each built from a template of typed fields.
//
// The package owns the field-type catalog, the template registry, value
// validation, and two Store implementations (in-memory and Postgres).
package pages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RootID is the parent of top-level pages.
var RootID = uuid.Nil

// MaxNameLength bounds page identifiers.
const MaxNameLength = 128

// Store errors.
var (
	ErrNotFound     = errors.New("page not found")
	ErrNameTaken    = errors.New("page name already in use under this parent")
	ErrInvalidValue = errors.New("invalid field value")
	ErrInvalidName  = errors.New("invalid page name")
)

// FieldType is the closed set of field kinds a template can declare.
type FieldType int

const (
	FieldText FieldType = iota
	FieldTextarea
	FieldTitle
	FieldBoolean
	FieldToggle
	FieldDatetime
	FieldEmail
	FieldURL
	FieldFloat
	FieldInteger
	FieldOptions
	FieldFiles
	FieldPage
	FieldPassword
	FieldRepeater
)

var fieldTypeNames = map[FieldType]string{
	FieldText:     "text",
	FieldTextarea: "textarea",
	FieldTitle:    "title",
	FieldBoolean:  "checkbox",
	FieldToggle:   "toggle",
	FieldDatetime: "datetime",
	FieldEmail:    "email",
	FieldURL:      "url",
	FieldFloat:    "float",
	FieldInteger:  "integer",
	FieldOptions:  "options",
	FieldFiles:    "file",
	FieldPage:     "page",
	FieldPassword: "password",
	FieldRepeater: "repeater",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// MarshalText renders the type name in JSON responses.
func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ReferenceConfig describes where a page-reference field looks up its targets.
type ReferenceConfig struct {
	// ParentPath is the slash-separated path of the page whose children are
	// valid targets, e.g. "/categories/". Empty means any top-level page.
	ParentPath string `json:"parentPath,omitempty"`

	// Template is used for targets created on demand. Empty disables creation.
	Template string `json:"template,omitempty"`

	// Multiple stores a list of references rather than a single one.
	Multiple bool `json:"multiple,omitempty"`
}

// FieldDescriptor describes one field of a template.
type FieldDescriptor struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`

	// MaxFiles limits a file field. 0 means unlimited.
	MaxFiles int `json:"maxFiles,omitempty"`

	// Options lists accepted values of an options field.
	Options []string `json:"options,omitempty"`

	Reference ReferenceConfig `json:"reference,omitempty"`
}

// Template is the structural type of a page.
type Template struct {
	Name   string            `json:"name"`
	Label  string            `json:"label"`
	Fields []FieldDescriptor `json:"fields"`
}

// Field returns the descriptor named name.
func (t Template) Field(name string) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Page is one record in the tree. Field values are strings for scalar types,
// []string for file fields, and uuid.UUID or []uuid.UUID for page references.
type Page struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	Template string
	Name     string
	Hidden   bool
	Created  time.Time
	Modified time.Time

	fields  map[string]any
	changed []string
}

// NewPage returns an unsaved page.
func NewPage(parentID uuid.UUID, template string) *Page {
	return &Page{ParentID: parentID, Template: template, fields: make(map[string]any)}
}

// IsNew reports whether the page has never been saved.
func (p *Page) IsNew() bool {
	return p.ID == uuid.Nil
}

// Title returns the page's title field.
func (p *Page) Title() string {
	s, _ := p.fields[TitleField].(string)
	return s
}

// TitleField is the field holding a page's display title.
const TitleField = "title"

// Get returns the value of a field, or nil.
func (p *Page) Get(field string) any {
	return p.fields[field]
}

// Fields returns a copy of the page's field values.
func (p *Page) Fields() map[string]any {
	out := make(map[string]any, len(p.fields))
	for k, v := range p.fields {
		out[k] = v
	}
	return out
}

// Set assigns a field value and records a change when it differs from the
// current one.
func (p *Page) Set(field string, value any) {
	if p.fields == nil {
		p.fields = make(map[string]any)
	}
	old, had := p.fields[field]
	p.fields[field] = value
	if had && valuesEqual(old, value) {
		return
	}
	p.track(field)
}

// Untrack removes field from the change set.
func (p *Page) Untrack(field string) {
	for i, f := range p.changed {
		if f == field {
			p.changed = append(p.changed[:i], p.changed[i+1:]...)
			return
		}
	}
}

// Changes lists fields modified since the page was loaded or last saved.
func (p *Page) Changes() []string {
	return append([]string(nil), p.changed...)
}

// clone copies a page including its change set. Stores hand out clones so
// callers never share state with stored records.
func (p *Page) clone() *Page {
	c := *p
	c.fields = make(map[string]any, len(p.fields))
	for k, v := range p.fields {
		c.fields[k] = cloneValue(v)
	}
	c.changed = append([]string(nil), p.changed...)
	return &c
}

func (p *Page) track(field string) {
	for _, f := range p.changed {
		if f == field {
			return
		}
	}
	p.changed = append(p.changed, field)
}

func (p *Page) resetChanges() {
	p.changed = nil
}

func (p *Page) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

// SaveResult reports what a Save call did.
type SaveResult struct {
	Created bool
	Written bool
	Changes []string
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []uuid.UUID:
		return append([]uuid.UUID(nil), x...)
	}
	return v
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case []string:
		y, ok := b.([]string)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case []uuid.UUID:
		y, ok := b.([]uuid.UUID)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case string, uuid.UUID, nil:
		return a == b
	}
	return false
}

// ReferenceString renders a page-reference value as pipe-separated IDs, so a
// single reference and a one-element list compare equal.
func ReferenceString(v any) string {
	switch x := v.(type) {
	case uuid.UUID:
		if x == uuid.Nil {
			return ""
		}
		return x.String()
	case []uuid.UUID:
		parts := make([]string, 0, len(x))
		for _, id := range x {
			parts = append(parts, id.String())
		}
		return strings.Join(parts, "|")
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
