package pages

// validate.go checks raw imported values against field types before a page
// is written. Imported text is messy: dates come in US, EU and ISO layouts,
// numbers carry currency symbols and thousands separators, and booleans are
// spelled a dozen ways. The Parse* helpers accept all of those.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot: two-digit years landing more than this many years in
// the future are moved back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"1/2/2006 15:04", "1/2/2006 15:04:05",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
		"20060102",
	}
)

// ParseDate parses s using the accepted date layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseNumber parses decimals written with currency symbols, thousands
// separators, or accounting parentheses for negatives.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseBool accepts true/false, yes/no, t/f, y/n, on/off and 1/0.
func ParseBool(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "on", "checked":
		return true, true
	case "false", "f", "no", "n", "0", "off":
		return false, true
	}
	return false, false
}

// Validate checks v against fd. Empty values are always accepted and clear
// the field.
func Validate(fd FieldDescriptor, v any) error {
	if v == nil {
		return nil
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidValue, fd.Name, fmt.Sprintf(format, args...))
	}

	switch fd.Type {
	case FieldFiles:
		files, ok := v.([]string)
		if !ok {
			return invalid("expected a file list, got %T", v)
		}
		if fd.MaxFiles > 0 && len(files) > fd.MaxFiles {
			return invalid("%d files exceeds the limit of %d", len(files), fd.MaxFiles)
		}
		return nil
	case FieldPage:
		switch ref := v.(type) {
		case uuid.UUID:
			return nil
		case []uuid.UUID:
			if !fd.Reference.Multiple && len(ref) > 1 {
				return invalid("field holds a single reference, got %d", len(ref))
			}
			return nil
		}
		return invalid("expected a page reference, got %T", v)
	case FieldPassword, FieldRepeater:
		return invalid("%s fields cannot be set from imported values", fd.Type)
	}

	s, ok := v.(string)
	if !ok {
		return invalid("expected text, got %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	switch fd.Type {
	case FieldBoolean, FieldToggle:
		if _, ok := ParseBool(s); !ok {
			return invalid("%q is not a yes/no value", s)
		}
	case FieldDatetime:
		if _, ok := ParseDate(s); !ok {
			return invalid("%q is not a recognised date", s)
		}
	case FieldFloat:
		if _, ok := ParseNumber(s); !ok {
			return invalid("%q is not a number", s)
		}
	case FieldInteger:
		f, ok := ParseNumber(s)
		if !ok || f != float64(int64(f)) {
			return invalid("%q is not a whole number", s)
		}
	case FieldEmail:
		if err := validate.Var(s, "email"); err != nil {
			return invalid("%q is not an email address", s)
		}
	case FieldURL:
		if err := validate.Var(s, "url"); err != nil {
			return invalid("%q is not a URL", s)
		}
	case FieldOptions:
		for _, part := range strings.Split(s, "|") {
			if !hasOption(fd.Options, strings.TrimSpace(part)) {
				return invalid("%q is not one of %s", part, strings.Join(fd.Options, ", "))
			}
		}
	}
	return nil
}

func hasOption(options []string, v string) bool {
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return true
		}
	}
	return false
}
