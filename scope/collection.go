package scope

import (
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// Snapshots of the last seen collection. Their own types keep them apart from
// any value a watch function returns.
type (
	sliceSnapshot []any
	mapSnapshot   map[any]any
)

// WatchCollection watches the shallow contents of a slice, array or map.
// Added, removed, replaced and reordered items are changes, in-place changes
// below the first level are not. Any other value is watched by reference.
// listenerFn receives a deep copy of the previous value as oldValue.
func (s *Scope) WatchCollection(watchFn WatchFunc, listenerFn ListenerFunc) (deregister func()) {
	if watchFn == nil {
		panic("scope: WatchCollection requires a watch function")
	}

	var (
		newValue    any
		oldValue    any
		veryOld     any
		changeCount int
		firstRun    = true
	)

	internalWatch := func(scope *Scope) any {
		newValue = watchFn(scope)

		v := reflect.ValueOf(newValue)
		switch {
		case newValue != nil && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array):
			old, ok := oldValue.(sliceSnapshot)
			if !ok {
				changeCount++
				old = sliceSnapshot{}
			}
			if len(old) != v.Len() {
				changeCount++
				old = resize(old, v.Len())
			}
			for i := range v.Len() {
				item := v.Index(i).Interface()
				if !identical(item, old[i]) {
					changeCount++
					old[i] = item
				}
			}
			oldValue = old

		case newValue != nil && v.Kind() == reflect.Map:
			old, ok := oldValue.(mapSnapshot)
			if !ok {
				changeCount++
				old = mapSnapshot{}
			}
			seen := mapset.NewThreadUnsafeSet[any]()
			iter := v.MapRange()
			for iter.Next() {
				key := iter.Key().Interface()
				item := iter.Value().Interface()
				seen.Add(key)
				prev, had := old[key]
				if !had || !identical(item, prev) {
					changeCount++
					old[key] = item
				}
			}
			if len(old) > seen.Cardinality() {
				changeCount++
				for key := range old {
					if !seen.Contains(key) {
						delete(old, key)
					}
				}
			}
			oldValue = old

		default:
			if !identical(newValue, oldValue) {
				changeCount++
			}
			oldValue = newValue
		}
		return changeCount
	}

	internalListener := func(_, _ any, scope *Scope) error {
		previous := veryOld
		if firstRun {
			firstRun = false
			previous = newValue
		}
		var err error
		if listenerFn != nil {
			err = listenerFn(newValue, previous, scope)
		}
		veryOld = clone(newValue)
		return err
	}

	return s.Watch(internalWatch, internalListener)
}

func resize(s sliceSnapshot, n int) sliceSnapshot {
	if n <= len(s) {
		return s[:n]
	}
	return append(s, make(sliceSnapshot, n-len(s))...)
}
