package core

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Allowed reports whether values of fd can be imported. Only types with a
// coercion handler qualify.
func Allowed(fd pages.FieldDescriptor) bool {
	_, ok := coercers[fd.Type]
	return ok
}

// AllowedFields lists the importable fields of tpl in template order.
func AllowedFields(tpl pages.Template) []pages.FieldDescriptor {
	var out []pages.FieldDescriptor
	for _, f := range tpl.Fields {
		if Allowed(f) {
			out = append(out, f)
		}
	}
	return out
}

// ColumnBinding maps CSV column indexes to destination field names. A column
// missing from the map is unbound.
type ColumnBinding map[int]string

// Field returns the field bound to column i.
func (b ColumnBinding) Field(i int) (string, bool) {
	f, ok := b[i]
	return f, ok
}

// Columns returns the bound column indexes in ascending order.
func (b ColumnBinding) Columns() []int {
	cols := make([]int, 0, len(b))
	for c := range b {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	return cols
}

// Bind maps header columns to importable fields of tpl. A column binds
// automatically when its header equals a field name. overrides force a
// column onto a field, or unbind it when the value is "". Each field takes
// at most one column: explicit overrides first, then auto matches, left to
// right. The returned warnings describe ignored overrides and columns left
// unbound because their field was already taken.
func Bind(header []string, tpl pages.Template, overrides map[int]string) (ColumnBinding, []string) {
	binding := make(ColumnBinding)
	taken := make(map[string]int)
	var warnings []string

	overridden := make([]int, 0, len(overrides))
	for col := range overrides {
		overridden = append(overridden, col)
	}
	sort.Ints(overridden)

	for _, col := range overridden {
		field := overrides[col]
		if col < 0 || col >= len(header) {
			warnings = append(warnings, fmt.Sprintf("mapping for column %d ignored: file has %d columns", col+1, len(header)))
			continue
		}
		if field == "" {
			continue
		}
		fd, ok := tpl.Field(field)
		if !ok || !Allowed(fd) {
			warnings = append(warnings, fmt.Sprintf("mapping %q -> %q ignored: %q is not an importable field of %s", header[col], field, field, tpl.Name))
			continue
		}
		if prev, dup := taken[field]; dup {
			warnings = append(warnings, fmt.Sprintf("column %q not imported: field %q is already bound to column %q", header[col], field, header[prev]))
			continue
		}
		binding[col] = field
		taken[field] = col
	}

	for col, name := range header {
		if _, explicit := overrides[col]; explicit {
			continue
		}
		fd, ok := tpl.Field(name)
		if !ok || !Allowed(fd) {
			continue
		}
		if prev, dup := taken[fd.Name]; dup {
			warnings = append(warnings, fmt.Sprintf("column %q not imported: field %q is already bound to column %q", name, fd.Name, header[prev]))
			continue
		}
		binding[col] = fd.Name
		taken[fd.Name] = col
	}

	return binding, warnings
}

// Suggest proposes fields for each unbound column, best match first, using
// fuzzy matching against field names and labels. Bound fields are not offered.
func Suggest(header []string, tpl pages.Template, binding ColumnBinding) map[int][]string {
	bound := make(map[string]bool, len(binding))
	for _, f := range binding {
		bound[f] = true
	}

	var (
		targets []string
		fieldOf []string
	)
	for _, fd := range AllowedFields(tpl) {
		if bound[fd.Name] {
			continue
		}
		targets = append(targets, fd.Name)
		fieldOf = append(fieldOf, fd.Name)
		if fd.Label != "" && fd.Label != fd.Name {
			targets = append(targets, fd.Label)
			fieldOf = append(fieldOf, fd.Name)
		}
	}

	out := make(map[int][]string)
	for col, name := range header {
		if _, ok := binding[col]; ok || name == "" {
			continue
		}
		ranks := fuzzy.RankFindNormalizedFold(name, targets)
		ranks = append(ranks, reverseRanks(name, targets)...)
		sort.Stable(ranks)

		seen := make(map[string]bool)
		for _, r := range ranks {
			f := fieldOf[r.OriginalIndex]
			if !seen[f] {
				seen[f] = true
				out[col] = append(out[col], f)
			}
		}
	}
	return out
}

// reverseRanks matches targets contained in the header, so "Product SKU"
// still suggests "sku".
func reverseRanks(header string, targets []string) fuzzy.Ranks {
	var ranks fuzzy.Ranks
	for i, t := range targets {
		if fuzzy.MatchNormalizedFold(t, header) {
			ranks = append(ranks, fuzzy.Rank{
				Source:        t,
				Target:        header,
				Distance:      fuzzy.LevenshteinDistance(t, header),
				OriginalIndex: i,
			})
		}
	}
	return ranks
}
