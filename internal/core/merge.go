package core

import (
	"fmt"

	"github.com/JonMunkholm/PageImport/internal/pages"
)

// Draft collects one row's converted values before they reach a page.
type Draft struct {
	Name  string
	Title string

	// Fields lists bound fields in column order.
	Fields    []string
	Immediate map[string]any
	Deferred  map[string][]string
	Notes     []string
}

func newDraft() *Draft {
	return &Draft{
		Immediate: make(map[string]any),
		Deferred:  make(map[string][]string),
	}
}

// Apply stores a coerced value for field. A title value also provides the
// draft's name when none is set yet.
func (d *Draft) Apply(field string, c Coerced) {
	d.Notes = append(d.Notes, c.Notes...)
	if c.Unset {
		return
	}
	d.Fields = append(d.Fields, field)
	if c.Deferred {
		sources, _ := c.Value.([]string)
		d.Deferred[field] = sources
		return
	}
	d.Immediate[field] = c.Value
	if field == pages.TitleField {
		d.Title, _ = c.Value.(string)
	}
	if d.Name == "" && c.Name != "" {
		d.Name = c.Name
	}
}

// applyTo assigns the draft's immediate values onto p in column order.
func (d *Draft) applyTo(p *pages.Page) {
	for _, f := range d.Fields {
		if v, ok := d.Immediate[f]; ok {
			p.Set(f, v)
		}
	}
}

// Merge overwrites existing with the draft's immediate values. Reference
// fields whose value is unchanged apart from representation stay out of the
// change set. Deferred values are applied by the caller after the first save.
func Merge(existing *pages.Page, d *Draft, tpl pages.Template) error {
	if existing.Template != tpl.Name {
		return fmt.Errorf("%w: %q uses %s, import targets %s",
			ErrTemplateMismatch, existing.Name, existing.Template, tpl.Name)
	}

	for _, f := range d.Fields {
		v, ok := d.Immediate[f]
		if !ok {
			continue
		}
		old := existing.Get(f)
		existing.Set(f, v)
		if fd, _ := tpl.Field(f); fd.Type == pages.FieldPage &&
			pages.ReferenceString(old) == pages.ReferenceString(v) {
			existing.Untrack(f)
		}
	}
	return nil
}
