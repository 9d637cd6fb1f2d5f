package budget

import "testing"

func TestStepBudget_StepCeiling(t *testing.T) {
	b := NewStepBudget(3, 0)
	for i := 0; i < 3; i++ {
		if err := b.Step(); err != nil {
			t.Fatalf("Step %d: unexpected error %v", i, err)
		}
	}
	err := b.Step()
	if err == nil {
		t.Fatal("expected ErrExceeded on 4th step, got nil")
	}
	if _, ok := err.(ErrExceeded); !ok {
		t.Fatalf("expected ErrExceeded, got %T", err)
	}
}

func TestStepBudget_CharCeiling(t *testing.T) {
	b := NewStepBudget(0, 100)
	if err := b.AddChars(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AddChars(60); err == nil {
		t.Fatal("expected ErrExceeded, got nil")
	}
}

func TestStepBudget_ZeroLimitIsUnlimited(t *testing.T) {
	b := NewStepBudget(0, 0)
	for i := 0; i < 1000; i++ {
		if err := b.Step(); err != nil {
			t.Fatalf("unexpected error at step %d: %v", i, err)
		}
	}
}
