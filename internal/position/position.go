// Package position allocates fractional-index sort keys: opaque strings
// whose lexicographic order is the list order. Inserting between two
// neighbors only ever touches the moved row; the rest of the scope keeps
// its keys.
package position

import (
	"errors"
	"fmt"
	"strings"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const base = len(alphabet)

// ErrExhausted reports that no distinct key exists adjacent to a bound at
// the current precision. It is expected control flow: callers respond by
// rebalancing the whole scope, not by treating it as a fault.
var ErrExhausted = errors.New("position: no key between bounds")

// Initial returns the minimum representable key, used for the first item
// in an empty scope. Nothing can ever be placed before it without a
// rebalance.
func Initial() string {
	return string(alphabet[0])
}

// Valid reports whether s is a well-formed key.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// Append returns a key strictly greater than every key in existing.
// An empty set yields Initial. Append never exhausts: it extends key
// length instead.
func Append(existing []string) string {
	max := ""
	for _, k := range existing {
		if k > max {
			max = k
		}
	}
	if max == "" {
		return Initial()
	}
	return after(max)
}

// Between returns a key strictly between lower and upper. An empty bound
// means unbounded on that side. The result is a pure function of the
// bounds: the same pair always yields the same key. When no distinct key
// fits below upper at current precision it returns ErrExhausted.
func Between(lower, upper string) (string, error) {
	if lower != "" && !Valid(lower) {
		return "", fmt.Errorf("position: bad lower bound %q", lower)
	}
	if upper != "" && !Valid(upper) {
		return "", fmt.Errorf("position: bad upper bound %q", upper)
	}
	switch {
	case lower == "" && upper == "":
		return string(alphabet[base/2]), nil
	case upper == "":
		return after(lower), nil
	case lower == "":
		return before(upper)
	}
	if lower >= upper {
		return "", fmt.Errorf("position: bounds out of order: %q >= %q", lower, upper)
	}
	return mid(lower, upper)
}

// Rebalance returns n distinct, strictly increasing keys spread evenly
// across the representable space, restoring insertion slack for a whole
// scope at once.
func Rebalance(n int) []string {
	if n < 1 {
		return nil
	}
	width := 1
	capacity := base
	for capacity < n+1 {
		width++
		capacity *= base
	}
	step := capacity / (n + 1)
	keys := make([]string, n)
	for i := range keys {
		v := (i + 1) * step
		b := make([]byte, width)
		for j := width - 1; j >= 0; j-- {
			b[j] = alphabet[v%base]
			v /= base
		}
		keys[i] = string(b)
	}
	return keys
}

func digit(c byte) int {
	return strings.IndexByte(alphabet, c)
}

// after returns a key strictly greater than k, halving the remaining
// headroom at the last digit and growing the key when the digit is maxed.
func after(k string) string {
	i := len(k) - 1
	d := digit(k[i])
	if d < base-1 {
		return k[:i] + string(alphabet[(d+base)/2])
	}
	return k + string(alphabet[base/2])
}

// before returns a key strictly less than k. Exhausted when k is already
// the minimum representable key.
func before(k string) (string, error) {
	if k == Initial() {
		return "", ErrExhausted
	}
	d := digit(k[0])
	if d == 0 {
		// k extends the floor digit, so the bare floor digit sorts below it.
		return Initial(), nil
	}
	return string(alphabet[d/2]), nil
}

// mid returns a key strictly between a and b (a < b, both valid).
func mid(a, b string) (string, error) {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n == len(a) {
		// a is a proper prefix of b; descend into b's suffix.
		rest, err := before(b[n:])
		if err != nil {
			return "", ErrExhausted
		}
		return a + rest, nil
	}
	da, db := digit(a[n]), digit(b[n])
	if db-da > 1 {
		return a[:n] + string(alphabet[(da+db+1)/2]), nil
	}
	// Adjacent digits: keep a's digit and extend past a's remainder.
	tail := a[n+1:]
	if tail == "" {
		return a[:n+1] + string(alphabet[base/2]), nil
	}
	return a[:n+1] + after(tail), nil
}
