package pages

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTemplate = Template{
	Name: "doc",
	Fields: []FieldDescriptor{
		{Name: "title", Type: FieldTitle},
		{Name: "body", Type: FieldTextarea},
		{Name: "count", Type: FieldInteger},
		{Name: "price", Type: FieldFloat},
		{Name: "when", Type: FieldDatetime},
		{Name: "active", Type: FieldToggle},
		{Name: "contact", Type: FieldEmail},
		{Name: "site", Type: FieldURL},
		{Name: "color", Type: FieldOptions, Options: []string{"Red", "Green"}},
		{Name: "images", Type: FieldFiles, MaxFiles: 2},
		{Name: "related", Type: FieldPage, Reference: ReferenceConfig{Multiple: true}},
		{Name: "owner", Type: FieldPage},
		{Name: "secret", Type: FieldPassword},
	},
}

func TestMain(m *testing.M) {
	ClearTemplates()
	RegisterTemplate(testTemplate)
	os.Exit(m.Run())
}

// =============================================================================
// Slugify
// =============================================================================

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo", "foo"},
		{"  Hello World  ", "hello-world"},
		{"Crème Brûlée", "creme-brulee"},
		{"a -- b", "a-b"},
		{"v1.2_beta", "v1.2_beta"},
		{"!!!", ""},
		{"", ""},
		{"--edge--", "edge"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Slugify(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Slugify(got), "slugify must be idempotent")
		})
	}
}

func TestSlugify_Truncates(t *testing.T) {
	long := make([]byte, MaxNameLength+40)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, Slugify(string(long)), MaxNameLength)
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		field   string
		value   any
		wantErr bool
	}{
		{"body", "anything goes", false},
		{"count", "42", false},
		{"count", "1,000", false},
		{"count", "4.5", true},
		{"count", "abc", true},
		{"price", "$1,234.50", false},
		{"price", "(12.00)", false},
		{"price", "twelve", true},
		{"when", "2024-03-01", false},
		{"when", "3/1/24", false},
		{"when", "yesterday", true},
		{"active", "yes", false},
		{"active", "maybe", true},
		{"contact", "a@example.com", false},
		{"contact", "not-an-email", true},
		{"site", "https://example.com/x", false},
		{"site", "example", true},
		{"color", "red", false},
		{"color", "Red|Green", false},
		{"color", "Blue", true},
		{"images", []string{"a.jpg", "b.jpg"}, false},
		{"images", []string{"a", "b", "c"}, true},
		{"images", "a.jpg", true},
		{"related", []uuid.UUID{uuid.New(), uuid.New()}, false},
		{"owner", uuid.New(), false},
		{"owner", []uuid.UUID{uuid.New(), uuid.New()}, true},
		{"owner", "not a ref", true},
		{"secret", "hunter2", true},
		{"count", "", false},
		{"count", nil, false},
	}
	for _, tt := range tests {
		fd, ok := testTemplate.Field(tt.field)
		require.True(t, ok)
		err := Validate(fd, tt.value)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidValue, "%s=%v", tt.field, tt.value)
		} else {
			assert.NoError(t, err, "%s=%v", tt.field, tt.value)
		}
	}
}

func TestParseDate_TwoDigitPivot(t *testing.T) {
	d, ok := ParseDate("1/2/99")
	require.True(t, ok)
	assert.Equal(t, 1999, d.Year())
}

// =============================================================================
// Page change tracking
// =============================================================================

func TestPage_ChangeTracking(t *testing.T) {
	p := NewPage(RootID, "doc")
	p.Set("body", "x")
	assert.Equal(t, []string{"body"}, p.Changes())

	p.resetChanges()
	p.Set("body", "x")
	assert.Empty(t, p.Changes(), "same value is not a change")

	p.Set("related", []uuid.UUID{uuid.Nil})
	p.Untrack("related")
	assert.Empty(t, p.Changes())
}

func TestReferenceString(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, ReferenceString(id), ReferenceString([]uuid.UUID{id}))
	assert.Equal(t, "", ReferenceString(nil))
	assert.Equal(t, "", ReferenceString(uuid.Nil))
}

// =============================================================================
// MemoryStore
// =============================================================================

func TestMemoryStore_CreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := NewPage(RootID, "doc")
	p.Name = "foo"
	p.Set("title", "Foo")
	res, err := s.Save(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEqual(t, uuid.Nil, p.ID)

	got, err := s.FindByName(ctx, RootID, "foo")
	require.NoError(t, err)
	assert.Equal(t, "Foo", got.Title())

	got, err = s.FindByTitle(ctx, RootID, "Foo")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got, err = s.FindByTitle(ctx, RootID, "FOO")
	require.NoError(t, err, "title lookup ignores case")
	assert.Equal(t, p.ID, got.ID)

	res, err = s.Save(ctx, got)
	require.NoError(t, err)
	assert.False(t, res.Written, "no changes means no write")

	got.Set("body", "new body")
	res, err = s.Save(ctx, got)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, []string{"body"}, res.Changes)
}

func TestMemoryStore_NameTakenIncludesHidden(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	hidden := NewPage(RootID, "doc")
	hidden.Name = "foo"
	hidden.Hidden = true
	_, err := s.Save(ctx, hidden)
	require.NoError(t, err)

	exists, err := s.NameExists(ctx, RootID, "foo")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.FindByTitle(ctx, RootID, "")
	assert.ErrorIs(t, err, ErrNotFound, "hidden pages are not title matches")

	dup := NewPage(RootID, "doc")
	dup.Name = "foo"
	_, err = s.Save(ctx, dup)
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := NewPage(RootID, "doc")
	p.Name = "Not A Slug"
	_, err := s.Save(ctx, p)
	assert.ErrorIs(t, err, ErrInvalidName)

	p = NewPage(RootID, "doc")
	p.Name = "ok"
	p.Set("count", "many")
	_, err = s.Save(ctx, p)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, 0, s.Len())
}

func TestResolvePath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	parent := NewPage(RootID, "doc")
	parent.Name = "catalog"
	_, err := s.Save(ctx, parent)
	require.NoError(t, err)

	child := NewPage(parent.ID, "doc")
	child.Name = "shoes"
	_, err = s.Save(ctx, child)
	require.NoError(t, err)

	id, err := ResolvePath(ctx, s, "/catalog/shoes/")
	require.NoError(t, err)
	assert.Equal(t, child.ID, id)

	id, err = ResolvePath(ctx, s, "/")
	require.NoError(t, err)
	assert.Equal(t, RootID, id)

	_, err = ResolvePath(ctx, s, "/catalog/hats")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsurePath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := EnsurePath(ctx, s, "/catalog/shoes", "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	again, err := EnsurePath(ctx, s, "catalog/shoes/", "doc")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 2, s.Len(), "existing pages are reused")

	resolved, err := ResolvePath(ctx, s, "/catalog/shoes")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	p, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "shoes", p.Title())

	_, err = EnsurePath(ctx, s, "/Not Valid", "doc")
	assert.ErrorIs(t, err, ErrInvalidName)
}

// =============================================================================
// Postgres field encoding
// =============================================================================

func TestFieldsRoundTrip(t *testing.T) {
	id := uuid.New()
	in := map[string]any{
		"title":   "Foo",
		"images":  []string{"a.jpg"},
		"owner":   id,
		"related": []uuid.UUID{id},
	}
	raw, err := encodeFields(in)
	require.NoError(t, err)

	out, err := decodeFields(raw, testTemplate)
	require.NoError(t, err)
	assert.Equal(t, "Foo", out["title"])
	assert.Equal(t, []string{"a.jpg"}, out["images"])
	assert.Equal(t, []uuid.UUID{id}, out["owner"], "single references load as lists")
	assert.Equal(t, ReferenceString(in["owner"]), ReferenceString(out["owner"]))
}
