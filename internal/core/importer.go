package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/JonMunkholm/PageImport/internal/logging"
	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/google/uuid"
)

// FileAttacher stores file sources for a saved page and returns the stored
// names. It may return some names together with an error.
type FileAttacher interface {
	Attach(ctx context.Context, pageID uuid.UUID, sources []string) ([]string, error)
}

// Importer runs CSV imports against a page store.
type Importer struct {
	store pages.Store
	files FileAttacher
}

// NewImporter returns an Importer. files may be nil, in which case file
// columns are reported and not attached.
func NewImporter(store pages.Store, files FileAttacher) *Importer {
	return &Importer{store: store, files: files}
}

// run is the state of one Run call.
type run struct {
	store    pages.Store
	files    FileAttacher
	cfg      RunConfig
	tpl      pages.Template
	parentID uuid.UUID
	binding  ColumnBinding
	coercer  *Coercer
}

// Run reads src and imports each data row as a page. Errors returned are
// fatal: bad configuration, unknown template or parent, or an unreadable
// source. Problems with individual rows are reported in RunResult.Outcomes.
func (im *Importer) Run(ctx context.Context, src io.Reader, cfg RunConfig, overrides map[int]string, onProgress ProgressCallback) (*RunResult, error) {
	start := time.Now()
	logger := logging.WithFields(ctx, "template", cfg.Template, "parent", cfg.ParentPath)

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
	for _, w := range warnings {
		logger.Warn("binding", "warning", w)
	}

	refs := NewReferenceResolver(im.store, cfg.AutoCreateReferences)
	r := &run{
		store:    im.store,
		files:    im.files,
		cfg:      cfg,
		tpl:      tpl,
		parentID: parentID,
		binding:  binding,
		coercer:  NewCoercer(refs),
	}

	result := &RunResult{
		Template: tpl.Name,
		Binding:  binding,
		Warnings: warnings,
		Outcomes: make([]RowOutcome, 0),
	}
	logger.Info("import started", "columns", len(header), "bound", len(binding))

	for {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		var rowErr *RowError
		switch {
		case errors.As(err, &rowErr):
			if cfg.MaxRows > 0 && rowErr.Row > cfg.MaxRows {
				result.Truncated = true
			} else {
				result.add(failed(RowOutcome{Row: rowErr.Row, Line: rowErr.Line}, rowErr))
			}
		case err != nil:
			result.Duration = time.Since(start)
			result.Error = err.Error()
			return result, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
		case cfg.MaxRows > 0 && row.Number > cfg.MaxRows:
			result.Truncated = true
		default:
			out := r.processRow(ctx, row)
			if out.Severity == SeverityError {
				logger.Debug("row failed", "row", out.Row, "line", out.Line, "reason", out.Reason)
			}
			result.add(out)
			recordRow(tpl.Name, out.Action)
		}
		if result.Truncated {
			break
		}

		if onProgress != nil {
			onProgress(ImportProgress{
				Template: tpl.Name,
				Phase:    PhaseImporting,
				Rows:     result.Rows,
				Imported: result.Imported,
				Skipped:  result.Skipped,
				Failed:   result.Failed,
			})
		}
	}

	result.Duration = time.Since(start)
	recordReferencesCreated(tpl.Name, refs.Created())
	logger.Info("import finished",
		"rows", result.Rows,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
	return result, nil
}

func bindsTitle(b ColumnBinding) bool {
	for _, f := range b {
		if f == pages.TitleField {
			return true
		}
	}
	return false
}

func failed(out RowOutcome, err error) RowOutcome {
	out.Action = ActionFailed
	out.Severity = SeverityError
	out.Reason = err.Error()
	out.Code = MapError(err).Code
	return out
}

func cell(cells []string, col int) string {
	if col < len(cells) {
		return cells[col]
	}
	return ""
}

// processRow turns one data row into at most one written page.
func (r *run) processRow(ctx context.Context, row Row) (out RowOutcome) {
	out = RowOutcome{Row: row.Number, Line: row.Line}
	defer func() {
		if p := recover(); p != nil {
			logging.FromContext(ctx).Error("panic while importing row",
				"row", row.Number, "panic", p, "stack", string(debug.Stack()))
			out = failed(RowOutcome{Row: row.Number, Line: row.Line, Name: out.Name}, fmt.Errorf("internal error: %v", p))
		}
	}()

	d := newDraft()
	var refCols []int
	for _, col := range r.binding.Columns() {
		fd, _ := r.tpl.Field(r.binding[col])
		if fd.Type == pages.FieldPage {
			refCols = append(refCols, col)
			continue
		}
		c, err := r.coercer.Coerce(ctx, fd, cell(row.Cells, col))
		if err != nil {
			return failed(out, err)
		}
		d.Apply(fd.Name, c)
	}

	if d.Name == "" {
		return failed(out, ErrNoIdentifier)
	}
	out.Name = d.Name

	existing, err := r.store.FindByName(ctx, r.parentID, d.Name)
	if err != nil && !errors.Is(err, pages.ErrNotFound) {
		return failed(out, err)
	}

	decision := Decide(existing, r.cfg.DuplicatePolicy)
	if decision == DecisionSkip {
		out.Action = ActionSkipped
		out.Severity = SeverityWarning
		out.Reason = fmt.Sprintf("skipped duplicate %q", d.Name)
		out.PageID = existing.ID
		return out
	}

	// References resolve only for rows that will be written, so skipped and
	// rejected rows never create target pages.
	for _, col := range refCols {
		fd, _ := r.tpl.Field(r.binding[col])
		c, err := r.coercer.Coerce(ctx, fd, cell(row.Cells, col))
		if err != nil {
			return failed(out, err)
		}
		d.Apply(fd.Name, c)
	}

	var (
		page *pages.Page
		res  pages.SaveResult
	)
	switch decision {
	case DecisionCreate, DecisionCreateUnique:
		if decision == DecisionCreateUnique {
			name, err := UniqueName(ctx, r.store, d.Name, r.parentID)
			if err != nil {
				return failed(out, err)
			}
			out.Reason = fmt.Sprintf("renamed from %q", d.Name)
			d.Name = name
		}
		page, res, err = r.create(ctx, d)
		if err != nil {
			return failed(out, err)
		}
		out.Action = ActionCreated
	case DecisionModify:
		if err := Merge(existing, d, r.tpl); err != nil {
			return failed(out, err)
		}
		page = existing
		if res, err = r.store.Save(ctx, page); err != nil {
			return failed(out, err)
		}
		out.Action = ActionModified
	}

	out.Name = page.Name
	out.PageID = page.ID
	out.Changes = res.Changes
	out.Severity = SeverityInfo
	out.Notes = append(out.Notes, d.Notes...)

	if len(d.Deferred) > 0 {
		written, err := r.attachDeferred(ctx, page, d)
		if written != nil {
			res.Written = true
			out.Changes = appendUnique(out.Changes, written...)
		}
		if err != nil {
			out.Severity = SeverityWarning
			out.Notes = append(out.Notes, err.Error())
			out.Code = MapError(err).Code
		}
	}

	if out.Action == ActionModified && !res.Written {
		out.Action = ActionUnchanged
	}
	return out
}

// create saves a new page, retrying once under a unique name when another
// writer took the name since the duplicate check.
func (r *run) create(ctx context.Context, d *Draft) (*pages.Page, pages.SaveResult, error) {
	p := pages.NewPage(r.parentID, r.tpl.Name)
	p.Name = d.Name
	d.applyTo(p)

	res, err := r.store.Save(ctx, p)
	if errors.Is(err, pages.ErrNameTaken) {
		name, uerr := UniqueName(ctx, r.store, d.Name, r.parentID)
		if uerr != nil {
			return nil, res, uerr
		}
		p.Name = name
		res, err = r.store.Save(ctx, p)
	}
	if err != nil {
		return nil, res, err
	}
	return p, res, nil
}

// attachDeferred stores file values once the page exists, replaces the
// field's files with them and saves again.
// Returns the fields written by the second save.
func (r *run) attachDeferred(ctx context.Context, page *pages.Page, d *Draft) ([]string, error) {
	if r.files == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", ErrAttachment)
	}

	var errs []error
	for _, field := range d.Fields {
		sources, ok := d.Deferred[field]
		if !ok {
			continue
		}
		stored, err := r.files.Attach(ctx, page.ID, sources)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		if len(stored) == 0 {
			continue
		}
		fd, _ := r.tpl.Field(field)
		page.Set(field, limitFiles(stored, fd.MaxFiles))
	}

	var written []string
	if len(page.Changes()) > 0 {
		res, err := r.store.Save(ctx, page)
		if err != nil {
			errs = append(errs, err)
		} else if res.Written {
			written = res.Changes
		}
	}

	if len(errs) > 0 {
		return written, fmt.Errorf("%w: %w", ErrAttachment, errors.Join(errs...))
	}
	return written, nil
}

// limitFiles returns the distinct stored names, at most max when the field
// is limited. The result replaces the field's current files.
func limitFiles(stored []string, max int) []string {
	out := appendUnique(nil, stored...)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, l := range list {
			if l == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}
