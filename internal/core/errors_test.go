package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/JonMunkholm/PageImport/internal/pages"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"no identifier", fmt.Errorf("row 3: %w", ErrNoIdentifier), "ROW001"},
		{"template mismatch", fmt.Errorf("%w: foo", ErrTemplateMismatch), "ROW002"},
		{"malformed row", &RowError{Row: 2, Line: 3, Err: csv.ErrQuote}, "ROW003"},
		{"invalid value", fmt.Errorf("%w: price: not a number", pages.ErrInvalidValue), "VAL001"},
		{"name taken sentinel", fmt.Errorf("save: %w", pages.ErrNameTaken), "DB001"},
		{"duplicate key text", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"deadlock", errors.New("deadlock detected"), "DB007"},
		{"attachment", fmt.Errorf("%w: a.jpg", ErrAttachment), "FILE003"},
		{"unreadable source", fmt.Errorf("%w: no header row", ErrSourceUnreadable), "FILE002"},
		{"invalid config", fmt.Errorf("%w: quote", ErrInvalidConfig), "RUN001"},
		{"unknown template", fmt.Errorf("%w: x", ErrUnknownTemplate), "RUN002"},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), "RUN003"},
		{"deadline", context.DeadlineExceeded, "RUN004"},
		{"run not found", ErrRunNotFound, "RUN005"},
		{"too many imports", ErrTooManyImports, "RUN006"},
		{"unknown error", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() Code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() Message is empty")
			}
		})
	}
}

func TestMapError_SentinelBeatsPattern(t *testing.T) {
	// Wraps a sentinel inside text that would also match the timeout pattern.
	err := fmt.Errorf("timeout while saving: %w", pages.ErrInvalidValue)
	if got := MapError(err).Code; got != "VAL001" {
		t.Errorf("MapError() Code = %q, want VAL001", got)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrNoIdentifier)
	if !strings.Contains(got, "(Code: ROW001)") {
		t.Errorf("FormatUserError() = %q, want code suffix", got)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if IsUserFacing(errors.New("random")) {
		t.Error("unknown errors should not be user facing")
	}
	if !IsUserFacing(pages.ErrNameTaken) {
		t.Error("ErrNameTaken should be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Fatal("NewUserError(nil) should be nil")
	}
	tech := fmt.Errorf("save: %w", pages.ErrNameTaken)
	ue := NewUserError(tech)
	if !errors.Is(ue, pages.ErrNameTaken) {
		t.Error("UserError should unwrap to the technical error")
	}
	if ue.Error() != ue.User.Message {
		t.Errorf("Error() = %q, want user message", ue.Error())
	}
}
