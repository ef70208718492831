package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Store persists pages. Implementations must enforce name uniqueness per
// parent (including hidden pages) and validate field values on Save.
type Store interface {
	// Get loads a page by ID.
	Get(ctx context.Context, id uuid.UUID) (*Page, error)

	// FindByName returns the child of parentID named name, hidden pages included.
	FindByName(ctx context.Context, parentID uuid.UUID, name string) (*Page, error)

	// FindByTitle returns the first visible child of parentID whose title
	// equals title, ignoring case.
	FindByTitle(ctx context.Context, parentID uuid.UUID, title string) (*Page, error)

	// NameExists reports whether any page, hidden or trashed included, uses
	// name under parentID.
	NameExists(ctx context.Context, parentID uuid.UUID, name string) (bool, error)

	// Save creates a new page or writes the tracked changes of an existing one.
	Save(ctx context.Context, p *Page) (SaveResult, error)
}

// ResolvePath walks a slash-separated path of page names from the root and
// returns the ID of the last page. "" and "/" resolve to RootID.
func ResolvePath(ctx context.Context, s Store, path string) (uuid.UUID, error) {
	id := RootID
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		p, err := s.FindByName(ctx, id, name)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolve %q at %q: %w", path, name, err)
		}
		id = p.ID
	}
	return id, nil
}

// prepareSave validates p against its template and returns the fields to
// check. Shared by every Store implementation.
func prepareSave(p *Page) error {
	if p.Name == "" || len(p.Name) > MaxNameLength || p.Name != Slugify(p.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, p.Name)
	}
	tpl, ok := GetTemplate(p.Template)
	if !ok {
		return fmt.Errorf("unknown template %q", p.Template)
	}
	fields := p.changed
	if p.IsNew() {
		fields = nil
		for name := range p.fields {
			fields = append(fields, name)
		}
	}
	for _, name := range fields {
		fd, ok := tpl.Field(name)
		if !ok {
			return fmt.Errorf("%w: template %q has no field %q", ErrInvalidValue, tpl.Name, name)
		}
		if err := Validate(fd, p.fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// EnsurePath resolves path like ResolvePath, creating missing pages along
// the way with the given template. Each created page is titled after its name.
func EnsurePath(ctx context.Context, s Store, path, template string) (uuid.UUID, error) {
	id := RootID
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		p, err := s.FindByName(ctx, id, name)
		if errors.Is(err, ErrNotFound) {
			p = NewPage(id, template)
			p.Name = name
			p.Set(TitleField, name)
			if _, err = s.Save(ctx, p); err != nil {
				return uuid.Nil, fmt.Errorf("create %q in %q: %w", name, path, err)
			}
		} else if err != nil {
			return uuid.Nil, fmt.Errorf("resolve %q at %q: %w", path, name, err)
		}
		id = p.ID
	}
	return id, nil
}

// SeedReferenceParents creates the parent pages that registered templates
// point their reference fields at, so references resolve on a fresh store.
func SeedReferenceParents(ctx context.Context, s Store, template string) error {
	seen := make(map[string]bool)
	for _, t := range Templates() {
		for _, fd := range t.Fields {
			path := fd.Reference.ParentPath
			if fd.Type != FieldPage || path == "" || seen[path] {
				continue
			}
			seen[path] = true
			if _, err := EnsurePath(ctx, s, path, template); err != nil {
				return err
			}
		}
	}
	return nil
}
