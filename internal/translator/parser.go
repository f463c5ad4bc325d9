package translator

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var responseLineRe = regexp.MustCompile(`^\s*\[(\d+)\]\s*(.*)$`)

// ParseResponse extracts `[N] text` entries from a model reply. Lines that
// carry no marker continue the previous entry. Indices outside expected are
// dropped, duplicates keep their first occurrence, and the result comes back
// sorted by index. A malformed reply yields an empty slice, never an error.
func ParseResponse(response string, expected map[int]struct{}) []IndexedText {
	var results []IndexedText
	seen := make(map[int]int) // index -> position in results
	current := -1

	for _, raw := range strings.Split(response, "\n") {
		if m := responseLineRe.FindStringSubmatch(raw); m != nil {
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if _, ok := expected[idx]; !ok {
				current = -1
				continue
			}
			if _, dup := seen[idx]; dup {
				current = -1
				continue
			}
			seen[idx] = len(results)
			results = append(results, IndexedText{Index: idx, Text: strings.TrimSpace(m[2])})
			current = idx
			continue
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			// A blank line ends the current entry; whatever follows is
			// chatter, not a continuation.
			current = -1
			continue
		}
		if current < 0 {
			continue
		}
		results[seen[current]].Text += "\n" + line
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
