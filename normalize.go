package partsearch

import (
	"fmt"
	"strings"
)

// NormalizeColumn maps a raw spreadsheet header label to a stable
// internal column identifier: whitespace runs collapse to a single
// underscore, characters outside [A-Za-z0-9_] are dropped, the result
// is upper-cased and truncated to MaxColumnNameLength. A label that
// normalizes to the empty string yields the positional placeholder
// COLUMN_<n> (1-based), mirroring how the catalog importer has always
// named blank headers rather than aborting the import.
//
// The function is pure: the same label at the same position always
// yields the same identifier.
func NormalizeColumn(rawLabel string, position int) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range strings.TrimSpace(rawLabel) {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			pendingUnderscore = true
		case r == '-' || r == '.' || r == '/' || r == ',':
			// Common separators in catalog headers become underscores.
			pendingUnderscore = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_':
			if pendingUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingUnderscore = false
			b.WriteRune(r)
		default:
			// Dropped entirely: parentheses, brackets, unicode symbols.
		}
	}

	name := strings.ToUpper(b.String())
	if name == "" {
		name = fmt.Sprintf("COLUMN_%d", position+1)
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "COL_" + name
	}
	if len(name) > MaxColumnNameLength {
		name = name[:MaxColumnNameLength]
	}
	return name
}

// NormalizeColumns normalizes a full header row, disambiguating
// collisions by appending a numeric suffix to the later label in
// original column order. Returns ErrSchema when the header is empty.
func NormalizeColumns(rawLabels []string) ([]string, error) {
	if len(rawLabels) == 0 {
		return nil, fmt.Errorf("%w: header row has no columns", ErrSchema)
	}

	names := make([]string, 0, len(rawLabels))
	seen := make(map[string]int, len(rawLabels))
	for i, raw := range rawLabels {
		name := NormalizeColumn(raw, i)
		if n, ok := seen[name]; ok {
			base := name
			for {
				n++
				suffix := fmt.Sprintf("_%d", n)
				candidate := base
				if len(candidate)+len(suffix) > MaxColumnNameLength {
					candidate = candidate[:MaxColumnNameLength-len(suffix)]
				}
				candidate += suffix
				if _, taken := seen[candidate]; !taken {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		seen[name] = 1
		names = append(names, name)
	}
	return names, nil
}
