package repository

import (
	"sort"
	"strconv"
	"time"
)

// Select resolves a snapshot-set selector:
//
//	"latest" or ""     newest set
//	exact set ID       that set
//	epoch seconds      newest set not after that instant
//	RFC3339 timestamp  newest set not after that instant
func Select(sets []SnapshotSet, selector string) (SnapshotSet, error) {
	if len(sets) == 0 {
		return SnapshotSet{}, &SetNotFoundError{Selector: selector}
	}
	sorted := append([]SnapshotSet(nil), sets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	if selector == "" || selector == "latest" {
		return sorted[len(sorted)-1], nil
	}
	for _, set := range sorted {
		if set.ID == selector {
			return set, nil
		}
	}
	cutoff, ok := parseInstant(selector)
	if !ok {
		return SnapshotSet{}, &SetNotFoundError{Selector: selector}
	}
	var picked *SnapshotSet
	for i := range sorted {
		if !sorted[i].Time.After(cutoff) {
			picked = &sorted[i]
		}
	}
	if picked == nil {
		return SnapshotSet{}, &SetNotFoundError{Selector: selector}
	}
	return *picked, nil
}

func parseInstant(s string) (time.Time, bool) {
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
