package domain

import (
	"fmt"
	"reflect"
	"testing"
)

// TestPartition_ReconstructsInput checks that groups concatenate back to the input
// and respect the size bound for a range of list lengths and batch sizes.
func TestPartition_ReconstructsInput(t *testing.T) {
	for n := 0; n <= 35; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("hsa:%d", i)
		}
		for _, size := range []int{1, 2, 3, 7, 10, 100} {
			// Act
			plan, err := Partition(ids, size)

			// Assert
			if err != nil {
				t.Fatalf("n=%d size=%d: unexpected error %v", n, size, err)
			}
			if n == 0 {
				if plan.Len() != 0 {
					t.Fatalf("expected zero groups for empty input, got %d", plan.Len())
				}
				continue
			}
			for i, g := range plan.Groups() {
				if len(g) == 0 || len(g) > size {
					t.Errorf("n=%d size=%d: group %d has length %d", n, size, i, len(g))
				}
			}
			if got := plan.Flatten(); !reflect.DeepEqual(got, ids) {
				t.Errorf("n=%d size=%d: flatten mismatch: %v", n, size, got)
			}
		}
	}
}

// TestPartition_GroupCount tests the number of groups for an uneven split.
func TestPartition_GroupCount(t *testing.T) {
	// Arrange
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}

	// Act
	plan, err := Partition(ids, MaxEntriesPerRequest)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if plan.Len() != 2 {
		t.Fatalf("expected 2 groups, got %d", plan.Len())
	}
	if !reflect.DeepEqual(plan.Group(1), []string{"k", "l"}) {
		t.Errorf("unexpected second group %v", plan.Group(1))
	}
}

// TestPartition_InvalidSize tests that a non-positive size is rejected.
func TestPartition_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Partition([]string{"a"}, size)
		if err == nil {
			t.Fatalf("size %d: expected error", size)
		}
		if Classify(err) != CodeInvalidQuery {
			t.Errorf("size %d: expected invalid_query, got %s", size, Classify(err))
		}
	}
}

// TestPartition_CopiesInput ensures later mutation of the input does not leak into the plan.
func TestPartition_CopiesInput(t *testing.T) {
	ids := []string{"x", "y"}
	plan, _ := Partition(ids, 5)

	ids[0] = "changed"

	if plan.Group(0)[0] != "x" {
		t.Errorf("plan was mutated through the input slice")
	}
}
