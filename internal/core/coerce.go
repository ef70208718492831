package core

import (
	"context"
	"regexp"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/pages"
)

// Coerced is the result of converting one raw cell for one field.
type Coerced struct {
	Value any
	// Deferred values need the page to exist first (file attachments).
	Deferred bool
	// Unset means the cell produced nothing to assign.
	Unset bool
	// Name is the page name derived from a title value.
	Name  string
	Notes []string
}

type coerceFunc func(ctx context.Context, c *Coercer, fd pages.FieldDescriptor, raw string) (Coerced, error)

// coercers is the closed set of importable field types.
var coercers = map[pages.FieldType]coerceFunc{
	pages.FieldText:     coerceRaw,
	pages.FieldTextarea: coerceRaw,
	pages.FieldBoolean:  coerceRaw,
	pages.FieldToggle:   coerceRaw,
	pages.FieldDatetime: coerceRaw,
	pages.FieldEmail:    coerceRaw,
	pages.FieldURL:      coerceRaw,
	pages.FieldFloat:    coerceRaw,
	pages.FieldInteger:  coerceRaw,
	pages.FieldOptions:  coerceRaw,
	pages.FieldTitle:    coerceTitle,
	pages.FieldFiles:    coerceFiles,
	pages.FieldPage:     coerceReference,
}

// Coercer converts raw cell text into field values for one run.
type Coercer struct {
	refs *ReferenceResolver
}

// NewCoercer returns a Coercer resolving page references through refs.
func NewCoercer(refs *ReferenceResolver) *Coercer {
	return &Coercer{refs: refs}
}

// Coerce converts raw for fd. Type validation is left to the store.
func (c *Coercer) Coerce(ctx context.Context, fd pages.FieldDescriptor, raw string) (Coerced, error) {
	fn, ok := coercers[fd.Type]
	if !ok {
		return Coerced{Unset: true}, nil
	}
	return fn(ctx, c, fd, raw)
}

func coerceRaw(_ context.Context, _ *Coercer, _ pages.FieldDescriptor, raw string) (Coerced, error) {
	return Coerced{Value: raw}, nil
}

func coerceTitle(_ context.Context, _ *Coercer, _ pages.FieldDescriptor, raw string) (Coerced, error) {
	title := strings.TrimSpace(raw)
	return Coerced{Value: title, Name: pages.Slugify(title)}, nil
}

var fileSeparators = regexp.MustCompile(`[\r\n\t|]+`)

func coerceFiles(_ context.Context, _ *Coercer, fd pages.FieldDescriptor, raw string) (Coerced, error) {
	var sources []string
	for _, s := range fileSeparators.Split(strings.TrimSpace(raw), -1) {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return Coerced{Unset: true}, nil
	}
	if fd.MaxFiles == 1 {
		sources = sources[:1]
	}
	return Coerced{Value: sources, Deferred: true}, nil
}

func coerceReference(ctx context.Context, c *Coercer, fd pages.FieldDescriptor, raw string) (Coerced, error) {
	if c.refs == nil {
		return Coerced{Unset: true}, nil
	}
	return c.refs.Resolve(ctx, fd, raw)
}
