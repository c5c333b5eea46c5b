package probecache

import "sort"

// sortedKeys returns m's keys in ascending order so that Fingerprint is
// stable across calls with the same logical headers regardless of Go's
// randomized map iteration order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
