package postgres

import "testing"

func TestLimitOrAllLeavesUnboundedQueriesUnlimited(t *testing.T) {
	cases := []struct {
		limit int
		want  any
	}{
		{limit: 0, want: nil},
		{limit: -1, want: nil},
		{limit: 1, want: 1},
		{limit: 25000, want: 25000},
	}
	for _, tc := range cases {
		if got := limitOrAll(tc.limit); got != tc.want {
			t.Fatalf("limitOrAll(%d) = %v, want %v", tc.limit, got, tc.want)
		}
	}
}
