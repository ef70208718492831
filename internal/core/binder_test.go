package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedFields(t *testing.T) {
	var names []string
	for _, fd := range AllowedFields(itemTemplate) {
		names = append(names, fd.Name)
	}
	assert.Equal(t, []string{"title", "body", "price", "images", "cover", "category", "tags"}, names)
}

func TestBind(t *testing.T) {
	tests := []struct {
		name      string
		header    []string
		overrides map[int]string
		want      ColumnBinding
		warnings  int
	}{
		{
			name:   "exact names bind",
			header: []string{"title", "body", "unknown"},
			want:   ColumnBinding{0: "title", 1: "body"},
		},
		{
			name:   "matching is verbatim",
			header: []string{"Title", "BODY"},
			want:   ColumnBinding{},
		},
		{
			name:   "non-importable field is never bound",
			header: []string{"title", "secret"},
			want:   ColumnBinding{0: "title"},
		},
		{
			name:      "override replaces auto match",
			header:    []string{"Name", "title"},
			overrides: map[int]string{0: "title"},
			want:      ColumnBinding{0: "title"},
			warnings:  1,
		},
		{
			name:      "override unbinds",
			header:    []string{"title", "body"},
			overrides: map[int]string{1: ""},
			want:      ColumnBinding{0: "title"},
		},
		{
			name:     "duplicate header keeps first column",
			header:   []string{"title", "body", "body"},
			want:     ColumnBinding{0: "title", 1: "body"},
			warnings: 1,
		},
		{
			name:      "two overrides to one field keep the lower column",
			header:    []string{"a", "b"},
			overrides: map[int]string{1: "title", 0: "title"},
			want:      ColumnBinding{0: "title"},
			warnings:  1,
		},
		{
			name:      "override to unknown or disallowed field ignored",
			header:    []string{"a", "b", "c"},
			overrides: map[int]string{0: "nope", 1: "secret", 5: "body"},
			want:      ColumnBinding{},
			warnings:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := Bind(tt.header, itemTemplate, tt.overrides)
			assert.Equal(t, tt.want, got)
			assert.Len(t, warnings, tt.warnings, "warnings: %v", warnings)
		})
	}
}

func TestColumnBindingColumns(t *testing.T) {
	b := ColumnBinding{4: "body", 0: "title", 2: "price"}
	assert.Equal(t, []int{0, 2, 4}, b.Columns())

	f, ok := b.Field(2)
	assert.True(t, ok)
	assert.Equal(t, "price", f)
	_, ok = b.Field(1)
	assert.False(t, ok)
}

func TestSuggest(t *testing.T) {
	header := []string{"title", "Price", "Product Images", "zzz"}
	binding, _ := Bind(header, itemTemplate, nil)

	got := Suggest(header, itemTemplate, binding)

	assert.NotContains(t, got, 0, "bound columns get no suggestions")
	if assert.NotEmpty(t, got[1]) {
		assert.Equal(t, "price", got[1][0])
	}
	assert.Contains(t, got[2], "images")
	assert.Empty(t, got[3])
	for _, fields := range got {
		assert.NotContains(t, fields, "title", "bound fields are not offered")
		assert.NotContains(t, fields, "secret")
	}
}
