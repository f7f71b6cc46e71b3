package pdfinfo

import "testing"

func TestEstimateBySize(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{0, 1},
		{1024, 1},
		{50 * 1024, 1},
		{200 * 1024, 4},
		{1024 * 1024 * 1024, maxEstimatedPages},
	}
	for _, tc := range cases {
		if got := EstimateBySize(tc.size); got != tc.want {
			t.Fatalf("EstimateBySize(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestPageCountFallsBackOnGarbage(t *testing.T) {
	if got := PageCount([]byte("not a pdf at all")); got != 1 {
		t.Fatalf("garbage blob should estimate 1 page, got %d", got)
	}
}
