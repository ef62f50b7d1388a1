package booking

import (
	"testing"
	"time"
)

func TestGenerateSlots_Grid(t *testing.T) {
	slots := GenerateSlots(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if slots[0].Value != "09:00" {
		t.Errorf("first slot = %q, want 09:00", slots[0].Value)
	}
	if slots[len(slots)-1].Value != "16:30" {
		t.Errorf("last slot = %q, want 16:30", slots[len(slots)-1].Value)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Value <= slots[i-1].Value {
			t.Errorf("slot values not strictly increasing: %q then %q", slots[i-1].Value, slots[i].Value)
		}
	}
}

func TestGenerateSlots_Display(t *testing.T) {
	slots := GenerateSlots(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	byValue := make(map[string]string, len(slots))
	for _, s := range slots {
		byValue[s.Value] = s.Display
	}

	cases := map[string]string{
		"09:00": "09:00 AM",
		"11:30": "11:30 AM",
		"12:00": "12:00 PM",
		"12:30": "12:30 PM",
		"16:30": "04:30 PM",
	}
	for value, want := range cases {
		if got := byValue[value]; got != want {
			t.Errorf("display for %s = %q, want %q", value, got, want)
		}
	}
}

func TestGenerateSlots_SameForAnyDay(t *testing.T) {
	a := GenerateSlots(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := GenerateSlots(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))

	if len(a) != len(b) {
		t.Fatalf("slot counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("slot %d differs across days: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestValidSlotValue(t *testing.T) {
	valid := []string{"09:00", "12:30", "16:30"}
	for _, v := range valid {
		if !ValidSlotValue(v) {
			t.Errorf("ValidSlotValue(%q) = false, want true", v)
		}
	}

	invalid := []string{"08:30", "17:00", "09:15", "9:00", "", "16:31"}
	for _, v := range invalid {
		if ValidSlotValue(v) {
			t.Errorf("ValidSlotValue(%q) = true, want false", v)
		}
	}
}
