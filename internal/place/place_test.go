package place

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/groundcheck/internal/model"
)

func ranked(n int) []model.EvidenceItem {
	items := make([]model.EvidenceItem, n)
	for i := range items {
		items[i] = model.EvidenceItem{RerankPosition: i + 1}
	}
	return items
}

func ranks(items []model.EvidenceItem) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = item.RerankPosition
	}
	return out
}

func TestPlace(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{}},
		{1, []int{1}},
		{3, []int{1, 2, 3}},
		{4, []int{1, 2, 3, 4}},
		{5, []int{1, 2, 3, 5, 4}},
		{6, []int{1, 2, 3, 6, 5, 4}},
		{7, []int{1, 2, 3, 7, 6, 5, 4}},
		{10, []int{1, 2, 3, 7, 8, 9, 10, 6, 5, 4}},
	}

	for _, tt := range tests {
		got := ranks(Place(ranked(tt.n)))
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Place(%d) mismatch (-want +got):\n%s", tt.n, diff)
		}
	}
}

func TestPlace_SetsPositionsWithoutMutatingInput(t *testing.T) {
	in := ranked(8)
	out := Place(in)

	for i, item := range out {
		if item.Position != i+1 {
			t.Errorf("item %d: expected position %d, got %d", i, i+1, item.Position)
		}
	}
	for _, item := range in {
		if item.Position != 0 {
			t.Fatal("input slice was modified")
		}
	}
}

func TestPlace_IsPermutation(t *testing.T) {
	for n := 0; n <= 25; n++ {
		got := ranks(Place(ranked(n)))
		seen := make(map[int]bool)
		for _, r := range got {
			if seen[r] {
				t.Fatalf("n=%d: rank %d appears twice", n, r)
			}
			seen[r] = true
		}
		if len(seen) != n {
			t.Fatalf("n=%d: expected %d items, got %d", n, n, len(seen))
		}
	}
}
