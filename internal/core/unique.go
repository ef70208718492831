package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/google/uuid"
)

// MaxUniqueAttempts bounds the suffix search in UniqueName.
const MaxUniqueAttempts = 10000

// UniqueName returns candidate if no page under parentID uses it, hidden
// pages included, otherwise candidate-1, candidate-2 and so on.
func UniqueName(ctx context.Context, store pages.Store, candidate string, parentID uuid.UUID) (string, error) {
	for n := 0; n < MaxUniqueAttempts; n++ {
		name := candidate
		if n > 0 {
			name = withSuffix(candidate, n)
		}
		exists, err := store.NameExists(ctx, parentID, name)
		if err != nil {
			return "", fmt.Errorf("check name %q: %w", name, err)
		}
		if !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no free name for %q after %d attempts", pages.ErrNameTaken, candidate, MaxUniqueAttempts)
}

// withSuffix appends -n, trimming base so the result fits MaxNameLength.
func withSuffix(base string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(base)+len(suffix) > pages.MaxNameLength {
		base = strings.TrimRight(base[:pages.MaxNameLength-len(suffix)], "-._")
	}
	return base + suffix
}
