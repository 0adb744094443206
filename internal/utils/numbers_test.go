package utils

import (
	"strconv"
	"testing"
)

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"99999999999999999999999", 3, 3},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Errorf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ n, lo, hi, want int }{
		{0, 1, 100, 1},
		{50, 1, 100, 50},
		{101, 1, 100, 100},
		{-5, -10, -1, -5},
	}
	for _, tc := range cases {
		if got := Clamp(tc.n, tc.lo, tc.hi); got != tc.want {
			t.Errorf("Clamp(%d,%d,%d) = %d; want %d", tc.n, tc.lo, tc.hi, got, tc.want)
		}
	}
}

func TestOffset(t *testing.T) {
	cases := []struct{ page, size, want int }{
		{1, 20, 0},
		{3, 20, 40},
		{0, 20, 0},
		{2, 0, 0},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.page)+"x"+strconv.Itoa(tc.size), func(t *testing.T) {
			if got := Offset(tc.page, tc.size); got != tc.want {
				t.Fatalf("Offset = %d; want %d", got, tc.want)
			}
		})
	}
}
