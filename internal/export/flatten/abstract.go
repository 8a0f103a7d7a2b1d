package flatten

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// AbstractFromInvertedIndex rebuilds text from a word -> positions index by
// placing each word at its positions and joining in ascending position order.
// When two words claim the same position the lexically last word wins so the
// result does not depend on map iteration order.
func AbstractFromInvertedIndex(index map[string]any) string {
	if len(index) == 0 {
		return ""
	}

	words := make([]string, 0, len(index))
	for w := range index {
		words = append(words, w)
	}
	sort.Strings(words)

	byPos := make(map[int]string)
	for _, w := range words {
		positions, ok := index[w].([]any)
		if !ok {
			continue
		}
		for _, p := range positions {
			if pos, ok := toInt(p); ok {
				byPos[pos] = w
			}
		}
	}

	positions := make([]int, 0, len(byPos))
	for p := range byPos {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = byPos[p]
	}
	return strings.ReplaceAll(strings.Join(parts, " "), "\n", "")
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case float64:
		return int(t), true
	case int:
		return t, true
	default:
		return 0, false
	}
}
