package scope_test

import (
	"math"
	"testing"

	"github.com/delaneyj/scopeparty/scope"
	"github.com/stretchr/testify/assert"
)

type point struct {
	X, Y   int
	cached *int
}

func TestEqual(t *testing.T) {
	shared := []int{1, 2, 3}
	m := map[string]int{"a": 1}
	n := 7
	click := func() {}
	other := func() {}

	for _, tc := range []struct {
		name      string
		a, b      any
		reference bool
		value     bool
	}{
		{name: "nil", a: nil, b: nil, reference: true, value: true},
		{name: "nil and zero", a: nil, b: 0, reference: false, value: false},
		{name: "numbers", a: 1, b: 1, reference: true, value: true},
		{name: "different types", a: 1, b: int64(1), reference: false, value: false},
		{name: "NaN", a: math.NaN(), b: math.NaN(), reference: true, value: true},
		{name: "same slice", a: shared, b: shared, reference: true, value: true},
		{name: "equal slices", a: []int{1, 2, 3}, b: []int{1, 2, 3}, reference: false, value: true},
		{name: "shorter view", a: shared[:2], b: shared, reference: false, value: false},
		{name: "same map", a: m, b: m, reference: true, value: true},
		{name: "equal maps", a: map[string]int{"a": 1}, b: map[string]int{"a": 1}, reference: false, value: true},
		{name: "structs", a: point{X: 1, Y: 2}, b: point{X: 1, Y: 2}, reference: true, value: true},
		{name: "unexported state", a: point{X: 1, cached: &n}, b: point{X: 1}, reference: false, value: true},
		{name: "pointers", a: &point{X: 1}, b: &point{X: 1}, reference: false, value: true},
		{name: "arrays", a: [2]float64{1, math.NaN()}, b: [2]float64{1, math.NaN()}, reference: true, value: true},
		{name: "same func", a: click, b: click, reference: true, value: true},
		{name: "different funcs", a: click, b: other, reference: false, value: false},
		{name: "structs holding funcs", a: handler{Name: "x", OnClick: click}, b: handler{Name: "x", OnClick: click}, reference: true, value: true},
		{name: "structs holding other funcs", a: handler{OnClick: click}, b: handler{OnClick: other}, reference: false, value: false},
		{name: "nil funcs", a: handler{}, b: handler{}, reference: true, value: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.reference, scope.Equal(tc.a, tc.b, false), "reference")
			assert.Equal(t, tc.value, scope.Equal(tc.a, tc.b, true), "value")
		})
	}
}
