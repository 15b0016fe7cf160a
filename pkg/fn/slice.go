package fn

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, len(items))
	for i, v := range items {
		out[i] = f(v)
	}
	return out
}

// Filter returns elements where pred is true.
func Filter[T any](items []T, pred func(T) bool) []T {
	var out []T
	for _, v := range items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// FlatMap applies f to each element and flattens the results.
func FlatMap[T, U any](items []T, f func(T) []U) []U {
	var out []U
	for _, v := range items {
		out = append(out, f(v)...)
	}
	return out
}

// All reports whether pred holds for every element. Empty input is true.
func All[T any](items []T, pred func(T) bool) bool {
	for _, v := range items {
		if !pred(v) {
			return false
		}
	}
	return true
}

// Any reports whether pred holds for at least one element.
func Any[T any](items []T, pred func(T) bool) bool {
	for _, v := range items {
		if pred(v) {
			return true
		}
	}
	return false
}

// Group is one bucket produced by GroupBy.
type Group[K comparable, T any] struct {
	Key   K
	Items []T
}

// GroupBy groups items by a key function. Groups appear in the order their
// key was first seen.
func GroupBy[T any, K comparable](items []T, key func(T) K) []Group[K, T] {
	var out []Group[K, T]
	index := make(map[K]int)
	for _, v := range items {
		k := key(v)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Group[K, T]{Key: k})
		}
		out[i].Items = append(out[i].Items, v)
	}
	return out
}

// UniqueBy returns elements with unique keys, preserving order.
func UniqueBy[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{})
	var out []T
	for _, v := range items {
		k := key(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
