package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/google/uuid"
)

// ReferenceResolver turns reference tokens into page IDs for one run.
// Parent scopes are resolved once per run; pages are always looked up fresh,
// so pages created earlier in the same run are found.
type ReferenceResolver struct {
	store      pages.Store
	autoCreate bool
	scopes     map[string]scopeLookup
	created    int
}

type scopeLookup struct {
	id  uuid.UUID
	err error
}

// NewReferenceResolver returns a resolver. autoCreate enables creation of
// missing targets for fields that declare both a parent path and a template.
func NewReferenceResolver(store pages.Store, autoCreate bool) *ReferenceResolver {
	return &ReferenceResolver{
		store:      store,
		autoCreate: autoCreate,
		scopes:     make(map[string]scopeLookup),
	}
}

// Created returns how many target pages this resolver has created.
func (r *ReferenceResolver) Created() int {
	return r.created
}

func splitReferenceTokens(raw string) []string {
	var tokens []string
	for _, t := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '|' }) {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Resolve maps each token of raw to a page within fd's parent scope: by ID,
// then by the token's identifier, then by title ignoring case. Unresolved tokens are dropped. When nothing
// resolves the field is left unset.
func (r *ReferenceResolver) Resolve(ctx context.Context, fd pages.FieldDescriptor, raw string) (Coerced, error) {
	tokens := splitReferenceTokens(raw)
	if len(tokens) == 0 {
		return Coerced{Unset: true}, nil
	}

	parentID, err := r.scope(ctx, fd.Reference.ParentPath)
	if errors.Is(err, pages.ErrNotFound) {
		return Coerced{
			Unset: true,
			Notes: []string{fmt.Sprintf("%s: parent %q does not exist", fd.Name, fd.Reference.ParentPath)},
		}, nil
	}
	if err != nil {
		return Coerced{}, err
	}

	var (
		ids   []uuid.UUID
		notes []string
		seen  = make(map[uuid.UUID]bool)
	)
	for _, token := range tokens {
		p, err := r.lookup(ctx, fd, parentID, token)
		if err != nil {
			return Coerced{}, err
		}
		if p == nil && r.canCreate(fd) {
			if p, err = r.create(ctx, fd, parentID, token); err != nil {
				return Coerced{}, fmt.Errorf("create %s %q: %w", fd.Reference.Template, token, err)
			}
			if p != nil {
				notes = append(notes, fmt.Sprintf("%s: created %q", fd.Name, token))
			}
		}
		if p == nil {
			notes = append(notes, fmt.Sprintf("%s: %q not found", fd.Name, token))
			continue
		}
		if !seen[p.ID] {
			seen[p.ID] = true
			ids = append(ids, p.ID)
		}
		if !fd.Reference.Multiple {
			break
		}
	}

	if len(ids) == 0 {
		return Coerced{Unset: true, Notes: notes}, nil
	}
	if fd.Reference.Multiple {
		return Coerced{Value: ids, Notes: notes}, nil
	}
	return Coerced{Value: ids[0], Notes: notes}, nil
}

func (r *ReferenceResolver) canCreate(fd pages.FieldDescriptor) bool {
	return r.autoCreate && fd.Reference.ParentPath != "" && fd.Reference.Template != ""
}

func (r *ReferenceResolver) scope(ctx context.Context, path string) (uuid.UUID, error) {
	if l, ok := r.scopes[path]; ok {
		return l.id, l.err
	}
	id, err := pages.ResolvePath(ctx, r.store, path)
	if err != nil && !errors.Is(err, pages.ErrNotFound) {
		return uuid.Nil, err
	}
	r.scopes[path] = scopeLookup{id: id, err: err}
	return id, err
}

func (r *ReferenceResolver) lookup(ctx context.Context, fd pages.FieldDescriptor, parentID uuid.UUID, token string) (*pages.Page, error) {
	if id, err := uuid.Parse(token); err == nil {
		p, err := r.store.Get(ctx, id)
		switch {
		case err == nil && p.ParentID == parentID:
			return p, nil
		case err != nil && !errors.Is(err, pages.ErrNotFound):
			return nil, err
		}
	}

	var lookups []func() (*pages.Page, error)
	if name := pages.Slugify(token); name != "" {
		lookups = append(lookups, func() (*pages.Page, error) { return r.store.FindByName(ctx, parentID, name) })
	}
	lookups = append(lookups, func() (*pages.Page, error) { return r.store.FindByTitle(ctx, parentID, token) })
	for _, find := range lookups {
		p, err := find()
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, pages.ErrNotFound) {
			return nil, fmt.Errorf("look up %s %q: %w", fd.Name, token, err)
		}
	}
	return nil, nil
}

func (r *ReferenceResolver) create(ctx context.Context, fd pages.FieldDescriptor, parentID uuid.UUID, token string) (*pages.Page, error) {
	base := pages.Slugify(token)
	if base == "" {
		return nil, nil
	}
	name, err := UniqueName(ctx, r.store, base, parentID)
	if err != nil {
		return nil, err
	}
	p := pages.NewPage(parentID, fd.Reference.Template)
	p.Name = name
	p.Set(pages.TitleField, token)
	if _, err := r.store.Save(ctx, p); err != nil {
		return nil, err
	}
	r.created++
	return p, nil
}
