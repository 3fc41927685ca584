// Package reorder holds the user-controlled column order and projects rows
// through it.
//
// An Order is always a permutation of the header it was initialized from.
// Move is the only way to change it and it never adds, drops or duplicates a
// name. Project is a pure function of its inputs.
package reorder

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned by Move when an index falls outside
// [0, len-1]. The order is left unchanged.
var ErrIndexOutOfRange = errors.New("index out of range")

// IndexError carries the rejected move.
type IndexError struct {
	From, To, Len int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("move %d -> %d: %v (columns: %d)", e.From, e.To, ErrIndexOutOfRange, e.Len)
}

func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

// Order is an ordered sequence of column names.
type Order []string

// Initialize returns an order equal to the header's original order.
func Initialize(header []string) Order {
	o := make(Order, len(header))
	copy(o, header)
	return o
}

// Move removes the name at from and reinserts it at to, where to indexes the
// sequence after removal. Both indexes must lie in [0, len-1]; otherwise the
// move is rejected with an *IndexError. The input is never modified.
func Move(order Order, from, to int) (Order, error) {
	n := len(order)
	if from < 0 || from >= n || to < 0 || to >= n {
		return order, &IndexError{From: from, To: to, Len: n}
	}

	out := order.Clone()
	if from == to {
		return out, nil
	}

	name := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = name
	return out, nil
}

// Clone returns an independent copy.
func (o Order) Clone() Order {
	c := make(Order, len(o))
	copy(c, o)
	return c
}

// IndexOf returns the position of name, or -1.
func (o Order) IndexOf(name string) int {
	for i, n := range o {
		if n == name {
			return i
		}
	}
	return -1
}

// Equal reports whether both orders list the same names in the same order.
func (o Order) Equal(other Order) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// IsPermutation reports whether o holds exactly the names in header, each
// once.
func (o Order) IsPermutation(header []string) bool {
	if len(o) != len(header) {
		return false
	}
	counts := make(map[string]int, len(header))
	for _, h := range header {
		counts[h]++
	}
	for _, name := range o {
		counts[name]--
		if counts[name] < 0 {
			return false
		}
	}
	return true
}
