package stringutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUIDs accepts a comma separated list of UIDs and inclusive ranges, ex: "1,4,7-9". Duplicates
// are kept in the order given.
func ParseUIDs(s string) ([]uint32, error) {
	var uids []uint32
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(field, "-")
		first, err := parseUID(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseUID(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("invalid UID range %q", field)
			}
		}
		for uid := first; ; uid++ {
			uids = append(uids, uid)
			if uid == last {
				break
			}
		}
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("no UIDs in %q", s)
	}
	return uids, nil
}

func parseUID(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid UID %q", s)
	}
	return uint32(n), nil
}

// FormatUIDs joins uids with commas.
func FormatUIDs(uids []uint32) string {
	s := make([]string, len(uids))
	for i, uid := range uids {
		s[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return strings.Join(s, ",")
}
