package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/PageImport/internal/config"
	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/google/uuid"
)

const maxPreviewRows = 20

// ColumnPreview describes one header column and what it binds to.
type ColumnPreview struct {
	Index       int      `json:"index"`
	Header      string   `json:"header"`
	Field       string   `json:"field,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RowPreview is the predicted outcome of one sample row. Nothing is written.
type RowPreview struct {
	Row       int    `json:"row"`
	Line      int    `json:"line"`
	Name      string `json:"name,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Error     string `json:"error,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// PreviewResponse is the read-only analysis of an import file.
type PreviewResponse struct {
	Template         string          `json:"template"`
	Columns          []ColumnPreview `json:"columns"`
	Warnings         []string        `json:"warnings,omitempty"`
	Samples          []RowPreview    `json:"samples"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// TemplateInfo lists a template and the fields a column can bind to.
type TemplateInfo struct {
	Name   string      `json:"name"`
	Label  string      `json:"label,omitempty"`
	Fields []FieldInfo `json:"fields"`
}

// FieldInfo is the importable view of a field descriptor.
type FieldInfo struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// ListTemplates returns every registered template with its importable fields.
func ListTemplates() []TemplateInfo {
	tpls := pages.Templates()
	out := make([]TemplateInfo, 0, len(tpls))
	for _, t := range tpls {
		out = append(out, templateInfo(t))
	}
	return out
}

// DescribeTemplate returns the importable fields of one template.
func DescribeTemplate(name string) (TemplateInfo, error) {
	t, ok := pages.GetTemplate(name)
	if !ok {
		return TemplateInfo{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return templateInfo(t), nil
}

func templateInfo(t pages.Template) TemplateInfo {
	info := TemplateInfo{Name: t.Name, Label: t.Label, Fields: []FieldInfo{}}
	for _, fd := range AllowedFields(t) {
		info.Fields = append(info.Fields, FieldInfo{
			Name:     fd.Name,
			Label:    fd.Label,
			Type:     fd.Type.String(),
			Required: fd.Required,
		})
	}
	return info
}

// Preview reads the header and the first sample rows of src and reports the
// column binding, suggestions for unbound columns, and what each sample row
// would do under cfg. References are not resolved and nothing is saved.
func (im *Importer) Preview(ctx context.Context, src io.Reader, cfg RunConfig, overrides map[int]string) (*PreviewResponse, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tpl, ok := pages.GetTemplate(cfg.Template)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, cfg.Template)
	}
	parentID, err := pages.ResolvePath(ctx, im.store, cfg.ParentPath)
	if err != nil {
		return nil, fmt.Errorf("parent page: %w", err)
	}

	reader, err := NewReader(src, cfg.Delimiter, cfg.Quote)
	if err != nil {
		return nil, err
	}
	header, err := reader.Header()
	if err != nil {
		return nil, err
	}

	binding, warnings := Bind(header, tpl, overrides)
	if !bindsTitle(binding) {
		warnings = append(warnings, "no column is bound to the title field; every row will be rejected")
	}
	suggestions := Suggest(header, tpl, binding)

	resp := &PreviewResponse{
		Template: tpl.Name,
		Columns:  make([]ColumnPreview, 0, len(header)),
		Warnings: warnings,
		Samples:  make([]RowPreview, 0, maxPreviewRows),
	}
	for i, h := range header {
		resp.Columns = append(resp.Columns, ColumnPreview{
			Index:       i,
			Header:      h,
			Field:       binding[i],
			Suggestions: suggestions[i],
		})
	}

	coercer := NewCoercer(nil)
	seen := make(map[string]bool)
	for len(resp.Samples) < maxPreviewRows {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			resp.Samples = append(resp.Samples, RowPreview{Row: rowErr.Row, Line: rowErr.Line, Error: FormatUserError(rowErr)})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
		}
		resp.Samples = append(resp.Samples, im.previewRow(ctx, row, tpl, binding, coercer, cfg.DuplicatePolicy, parentID, seen))
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

func (im *Importer) previewRow(ctx context.Context, row Row, tpl pages.Template, binding ColumnBinding, coercer *Coercer, policy DuplicatePolicy, parentID uuid.UUID, seen map[string]bool) RowPreview {
	out := RowPreview{Row: row.Number, Line: row.Line}

	var name string
	for _, col := range binding.Columns() {
		fd, _ := tpl.Field(binding[col])
		if fd.Type != pages.FieldTitle {
			continue
		}
		c, err := coercer.Coerce(ctx, fd, cell(row.Cells, col))
		if err != nil {
			out.Error = FormatUserError(err)
			return out
		}
		name = c.Name
	}
	if name == "" {
		out.Error = FormatUserError(ErrNoIdentifier)
		return out
	}
	out.Name = name

	existing, err := im.store.FindByName(ctx, parentID, name)
	if err != nil && !errors.Is(err, pages.ErrNotFound) {
		out.Error = FormatUserError(err)
		return out
	}

	// A name repeated within the sample counts as a duplicate of the row
	// that will have been written first.
	out.Duplicate = existing != nil || seen[name]
	seen[name] = true

	d := DecisionCreate
	if out.Duplicate {
		d = Decide(&pages.Page{Name: name}, policy)
	}
	out.Decision = d.String()
	return out
}

// DefaultRunConfig builds a RunConfig from configured import defaults.
// Template and ParentPath are left for the caller.
func DefaultRunConfig(c config.ImportConfig) (RunConfig, error) {
	delim, err := ParseSeparator(c.Delimiter)
	if err != nil {
		return RunConfig{}, err
	}
	quote, err := ParseSeparator(c.Quote)
	if err != nil {
		return RunConfig{}, err
	}
	policy, err := ParseDuplicatePolicy(c.DuplicatePolicy)
	if err != nil {
		return RunConfig{}, err
	}
	return RunConfig{
		ParentPath:           "/",
		Delimiter:            delim,
		Quote:                quote,
		MaxRows:              c.MaxRows,
		DuplicatePolicy:      policy,
		AutoCreateReferences: c.AutoCreateReferences,
	}, nil
}

// NewServiceConfig maps configured limits onto ServiceConfig.
func NewServiceConfig(c config.ImportConfig) ServiceConfig {
	return ServiceConfig{
		MaxConcurrent: c.MaxConcurrent,
		MaxWaitTime:   c.MaxWaitTime,
		RunTimeout:    c.Timeout,
		ResultTTL:     c.ResultTTL,
	}
}
