package similarity_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/similarity"
)

func TestComputeIdenticalInputsMatch(t *testing.T) {
	a := similarity.Compute([]byte("the quick brown fox jumps over the lazy dog"))
	b := similarity.Compute([]byte("the quick brown fox jumps over the lazy dog"))
	if similarity.Distance(a, b) != 0 {
		t.Errorf("identical inputs should have distance 0, got %d", similarity.Distance(a, b))
	}
}

func TestComputeSimilarInputsCloserThanDissimilar(t *testing.T) {
	base := similarity.Compute([]byte("alpha beta gamma delta epsilon zeta eta theta"))
	similar := similarity.Compute([]byte("alpha beta gamma delta epsilon zeta eta thetb"))
	different := similarity.Compute([]byte("completely unrelated content with no overlap at all whatsoever"))

	dSim := similarity.Distance(base, similar)
	dDiff := similarity.Distance(base, different)
	if dSim > dDiff {
		t.Errorf("similar input distance %d should be <= different input distance %d", dSim, dDiff)
	}
}

func TestSortByPath(t *testing.T) {
	items := []similarity.Item{
		{Index: 0, Path: "z.txt"},
		{Index: 1, Path: "a.txt"},
		{Index: 2, Path: "m.txt"},
	}
	out := similarity.Sort(items, similarity.OrderPath, nil, nil)
	want := []string{"a.txt", "m.txt", "z.txt"}
	for i, it := range out {
		if it.Path != want[i] {
			t.Errorf("out[%d].Path = %q, want %q", i, it.Path, want[i])
		}
	}
}

func TestSortExplicit(t *testing.T) {
	items := []similarity.Item{{Index: 0, Path: "a"}, {Index: 1, Path: "b"}, {Index: 2, Path: "c"}}
	out := similarity.Sort(items, similarity.OrderExplicit, []int{2, 0, 1}, nil)
	want := []string{"c", "a", "b"}
	for i, it := range out {
		if it.Path != want[i] {
			t.Errorf("out[%d].Path = %q, want %q", i, it.Path, want[i])
		}
	}
}
