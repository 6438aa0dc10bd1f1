package audit

import (
	"reflect"
	"sort"
)

// Snapshot is a flat field map captured from an entity before or after a
// mutation. Values must be JSON-serializable.
type Snapshot map[string]interface{}

// Diff computes the structural difference between two snapshots. Only
// changed fields appear in the result; a field present on one side only is
// recorded with a nil counterpart. Returns nil when nothing changed, so
// callers can store NULL instead of an empty object.
func Diff(before, after Snapshot) Changes {
	changes := Changes{}

	for field, oldVal := range before {
		newVal, ok := after[field]
		if !ok {
			changes[field] = FieldChange{Before: oldVal, After: nil}
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			changes[field] = FieldChange{Before: oldVal, After: newVal}
		}
	}

	for field, newVal := range after {
		if _, ok := before[field]; !ok {
			changes[field] = FieldChange{Before: nil, After: newVal}
		}
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

// Created builds the diff for a newly created entity: every field changes
// from nil to its initial value.
func Created(after Snapshot) Changes {
	return Diff(Snapshot{}, after)
}

// Deleted builds the diff for a removed entity: every field changes from
// its final value to nil.
func Deleted(before Snapshot) Changes {
	return Diff(before, Snapshot{})
}

func sortedKeys(c Changes) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
