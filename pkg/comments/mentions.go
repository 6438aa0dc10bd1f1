package comments

import (
	"regexp"
	"strings"
)

// mentionPattern matches @username and @"display name". The quoted
// alternative comes first so a quoted mention is not half-consumed by the
// bare form.
var mentionPattern = regexp.MustCompile(`@"([^"]+)"|@([A-Za-z0-9][A-Za-z0-9._-]*)`)

// ParseMentions extracts the candidate names mentioned in content, in
// order of first appearance, deduplicated case-insensitively. Names are
// candidates only: resolution against actual collaborators happens in the
// store.
func ParseMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}
