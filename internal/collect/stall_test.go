package collect

import "testing"

func TestStallTracker(t *testing.T) {
	tracker := NewStallTracker(2)

	if tracker.Update(5) {
		t.Fatal("Round with new rows must not stall")
	}
	if tracker.Update(0) {
		t.Fatal("Stalled after one empty round with patience 2")
	}
	if tracker.StaleCount() != 1 {
		t.Errorf("Expected stale count 1, got %d", tracker.StaleCount())
	}
	if tracker.Update(3) {
		t.Fatal("Round with new rows must not stall")
	}
	if tracker.StaleCount() != 0 {
		t.Errorf("Expected stale count reset, got %d", tracker.StaleCount())
	}
	tracker.Update(0)
	if !tracker.Update(0) {
		t.Error("Expected stall after two consecutive empty rounds")
	}

	got := tracker.History()
	want := []int{5, 0, 3, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("Expected history %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("History[%d]: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestStallTrackerDefaultPatience(t *testing.T) {
	tracker := NewStallTracker(0)
	for i := 1; i < DefaultPatience; i++ {
		if tracker.Update(0) {
			t.Fatalf("Stalled after %d rounds, patience is %d", i, DefaultPatience)
		}
	}
	if !tracker.Update(0) {
		t.Error("Expected stall at default patience")
	}
}
