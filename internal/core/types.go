package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Fatal run errors. Anything else goes into a RowOutcome.
var (
	ErrInvalidConfig    = errors.New("invalid import configuration")
	ErrUnknownTemplate  = errors.New("unknown template")
	ErrSourceUnreadable = errors.New("source is not readable")
)

// Row-level errors.
var (
	ErrNoIdentifier     = errors.New("row has no title to derive a page name from")
	ErrTemplateMismatch = errors.New("existing page uses a different template")
	ErrAttachment       = errors.New("file attachment failed")
)

// DuplicatePolicy decides what happens when a row's page name already exists.
type DuplicatePolicy string

const (
	PolicySkip         DuplicatePolicy = "skip"
	PolicyCreateUnique DuplicatePolicy = "create-unique"
	PolicyModify       DuplicatePolicy = "modify"
)

// ParseDuplicatePolicy accepts the policy names used in config and requests.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyCreateUnique, PolicyModify:
		return p, nil
	case "":
		return PolicySkip, nil
	}
	return "", fmt.Errorf("%w: duplicate policy %q", ErrInvalidConfig, s)
}

// RunConfig is the immutable configuration of one import run.
type RunConfig struct {
	Template   string
	ParentPath string

	Delimiter rune
	Quote     rune

	// MaxRows stops the run after this many data rows. 0 means no limit.
	MaxRows int

	DuplicatePolicy      DuplicatePolicy
	AutoCreateReferences bool
}

// Validate checks the configuration before any row is read.
func (c RunConfig) Validate() error {
	var errs []string
	if c.Template == "" {
		errs = append(errs, "template is required")
	}
	if !validSeparator(c.Delimiter) {
		errs = append(errs, fmt.Sprintf("delimiter %q is not allowed", c.Delimiter))
	}
	if !validSeparator(c.Quote) || c.Quote >= utf8.RuneSelf {
		errs = append(errs, fmt.Sprintf("quote %q is not allowed", c.Quote))
	}
	if c.Quote == c.Delimiter {
		errs = append(errs, "quote and delimiter must differ")
	}
	if c.MaxRows < 0 {
		errs = append(errs, "max rows must be non-negative")
	}
	if _, err := ParseDuplicatePolicy(string(c.DuplicatePolicy)); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func validSeparator(r rune) bool {
	return r != 0 && r != '\r' && r != '\n' && r != utf8.RuneError && utf8.ValidRune(r)
}

// ParseSeparator turns a one-character config value into a rune; `\t` and
// "tab" name the tab character.
func ParseSeparator(s string) (rune, error) {
	switch strings.ToLower(s) {
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		return 0, fmt.Errorf("%w: separator %q must be a single character", ErrInvalidConfig, s)
	}
	return r, nil
}

// Severity grades a row outcome.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Action is what happened to a row.
type Action string

const (
	ActionCreated   Action = "created"
	ActionModified  Action = "modified"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// RowOutcome reports one processed data row.
type RowOutcome struct {
	// Row is the 1-based data row number after the header, blank rows excluded.
	Row int `json:"row"`
	// Line is the physical line in the source where the row starts.
	Line     int       `json:"line"`
	Name     string    `json:"name,omitempty"`
	Action   Action    `json:"action"`
	Severity Severity  `json:"severity"`
	Reason   string    `json:"reason,omitempty"`
	Code     string    `json:"code,omitempty"`
	PageID   uuid.UUID `json:"pageId,omitempty"`
	Changes  []string  `json:"changes,omitempty"`
	Notes    []string  `json:"notes,omitempty"`
}

// String formats the outcome as a single log line.
func (o RowOutcome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d", o.Row)
	if o.Name != "" {
		fmt.Fprintf(&b, " [%s]", o.Name)
	}
	fmt.Fprintf(&b, ": %s", o.Action)
	if o.Reason != "" {
		fmt.Fprintf(&b, ": %s", o.Reason)
	}
	for _, n := range o.Notes {
		fmt.Fprintf(&b, "; %s", n)
	}
	return b.String()
}

// RunResult is the outcome of an import run.
type RunResult struct {
	RunID    string `json:"runId,omitempty"`
	Template string `json:"template"`
	FileName string `json:"fileName,omitempty"`

	// Imported counts rows that resulted in a written page.
	Imported  int `json:"imported"`
	Created   int `json:"created"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Rows      int `json:"rows"`

	Binding   ColumnBinding `json:"binding"`
	Warnings  []string      `json:"warnings,omitempty"`
	Outcomes  []RowOutcome  `json:"outcomes"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`

	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func (r *RunResult) add(o RowOutcome) {
	r.Rows++
	switch o.Action {
	case ActionCreated:
		r.Created++
		r.Imported++
	case ActionModified:
		r.Modified++
		r.Imported++
	case ActionUnchanged:
		r.Unchanged++
	case ActionSkipped:
		r.Skipped++
	case ActionFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// ImportPhase indicates the current stage of a run.
type ImportPhase string

const (
	PhaseQueued    ImportPhase = "queued"
	PhaseBinding   ImportPhase = "binding"
	PhaseImporting ImportPhase = "importing"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// Finished reports whether the run has ended.
func (p ImportPhase) Finished() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// ImportProgress is a snapshot of a running import.
type ImportProgress struct {
	RunID      string      `json:"runId"`
	Template   string      `json:"template"`
	FileName   string      `json:"fileName"`
	Phase      ImportPhase `json:"phase"`
	Rows       int         `json:"rows"`
	Imported   int         `json:"imported"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	BytesRead  int64       `json:"bytesRead"`
	BytesTotal int64       `json:"bytesTotal"`
	Error      string      `json:"error,omitempty"`
}

// Percent returns byte-based progress (0-100), or 0 when the size is unknown.
func (p ImportProgress) Percent() int {
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := int(p.BytesRead * 100 / p.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressCallback receives progress after every row.
type ProgressCallback func(ImportProgress)
