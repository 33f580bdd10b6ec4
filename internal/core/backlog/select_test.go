package backlog

import "testing"

func sampleItems() []Item {
	return []Item{
		{Number: 14, Title: "Search indexing", Status: StatusPlanned, HasSpec: false},
		{Number: 3, Title: "Auth tokens", Status: StatusPlanned, HasSpec: true},
		{Number: 9, Title: "Rate limits", Status: StatusPlanned, HasSpec: false},
		{Number: 1, Title: "Bootstrap", Status: StatusComplete, HasSpec: true},
		{Number: 7, Title: "Webhooks", Status: StatusBlocked, HasSpec: false},
		{Number: 5, Title: "Billing export", Status: StatusPlanned, HasSpec: true},
		{Number: 11, Title: "Audit log", Status: StatusInProgress, HasSpec: true},
	}
}

func TestMissingSpecs(t *testing.T) {
	got := MissingSpecs(sampleItems())

	if len(got) != 2 {
		t.Fatalf("expected 2 spec-less planned items, got %d", len(got))
	}
	if got[0].Number != 9 || got[1].Number != 14 {
		t.Errorf("expected items 9 then 14 oldest-first, got %d then %d", got[0].Number, got[1].Number)
	}
}

func TestMissingSpecs_IgnoresBlockedAndComplete(t *testing.T) {
	items := []Item{
		{Number: 1, Status: StatusBlocked, HasSpec: false},
		{Number: 2, Status: StatusComplete, HasSpec: false},
	}
	if got := MissingSpecs(items); len(got) != 0 {
		t.Errorf("blocked and complete items never need specs, got %v", got)
	}
}

func TestImplementables(t *testing.T) {
	got := Implementables(sampleItems())

	if len(got) != 2 {
		t.Fatalf("expected 2 implementable items, got %d", len(got))
	}
	if got[0].Number != 3 || got[1].Number != 5 {
		t.Errorf("expected items 3 then 5 oldest-first, got %d then %d", got[0].Number, got[1].Number)
	}
}

func TestImplementables_RequiresSpec(t *testing.T) {
	items := []Item{{Number: 4, Status: StatusPlanned, HasSpec: false}}
	if got := Implementables(items); len(got) != 0 {
		t.Errorf("planned item without a spec is not implementable, got %v", got)
	}
}

func TestOldest(t *testing.T) {
	item, ok := Oldest([]Item{{Number: 8}, {Number: 2}, {Number: 5}})
	if !ok || item.Number != 2 {
		t.Errorf("expected oldest item 2, got %d (ok=%v)", item.Number, ok)
	}

	if _, ok := Oldest(nil); ok {
		t.Error("empty set has no oldest item")
	}
}

func TestCountByStatus(t *testing.T) {
	counts := CountByStatus(sampleItems())
	if counts[StatusPlanned] != 4 || counts[StatusComplete] != 1 || counts[StatusBlocked] != 1 || counts[StatusInProgress] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
