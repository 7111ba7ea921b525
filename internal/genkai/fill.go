package genkai

// ForwardFill copies the closest non-nil value at or before index into every
// nil slot between it and index. Each filled slot gets its own copy. It
// returns false and leaves list untouched when nothing precedes index.
func ForwardFill[T any](list []*T, index int) bool {
	if index >= len(list) {
		index = len(list) - 1
	}
	src := -1
	for i := index; i >= 0; i-- {
		if list[i] != nil {
			src = i
			break
		}
	}
	if src < 0 {
		return false
	}
	for i := src + 1; i <= index; i++ {
		v := *list[src]
		list[i] = &v
	}
	return true
}
