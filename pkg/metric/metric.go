// Package metric reads back the expvar counters published by the other packages.
package metric

import (
	"expvar"
	"sort"
	"strconv"
	"strings"
)

// Snapshot returns the integer members of the published expvar map called name. Members that are
// not integers are left out, an unknown name yields an empty map.
func Snapshot(name string) map[string]int64 {
	result := make(map[string]int64)
	m, ok := expvar.Get(name).(*expvar.Map)
	if !ok {
		return result
	}
	m.Do(func(kv expvar.KeyValue) {
		if n, err := strconv.ParseInt(kv.Value.String(), 10, 64); err == nil {
			result[kv.Key] = n
		}
	})
	return result
}

// Format renders a snapshot as sorted key=value pairs joined by commas.
func Format(snapshot map[string]int64) string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = k + "=" + strconv.FormatInt(snapshot[k], 10)
	}
	return strings.Join(s, ",")
}
