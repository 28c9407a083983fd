package creatorwatch

import "strings"

// ParseCreatorIDs splits a comma-separated list of creator ids. Entries are
// trimmed; empty and repeated entries are dropped, keeping first-seen order.
//
// Example:
//
//	ParseCreatorIDs(" 123, ,456,123") // ["123", "456"]
func ParseCreatorIDs(s string) []string {
	return normalizeCreatorIDs(strings.Split(s, ","))
}

func normalizeCreatorIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
