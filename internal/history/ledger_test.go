package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_AppendAndList(t *testing.T) {
	l := openTestLedger(t)

	e, err := l.Append(Entry{Medicine: "Aspirin", Dose: "20 mg"})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if e.ID == "" {
		t.Error("ID should be filled in")
	}
	if e.TakenAt.IsZero() {
		t.Error("TakenAt should be filled in")
	}

	entries, err := l.List(0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].Medicine != "Aspirin" || entries[0].Dose != "20 mg" {
		t.Errorf("got %+v", entries[0])
	}
}

func TestLedger_Append_EmptyMedicineRejected(t *testing.T) {
	l := openTestLedger(t)
	if _, err := l.Append(Entry{Medicine: "  ", Dose: "20 mg"}); err == nil {
		t.Error("expected error for empty medicine")
	}
}

func TestLedger_List_NewestFirst(t *testing.T) {
	l := openTestLedger(t)

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		_, err := l.Append(Entry{
			Medicine: name,
			Dose:     "10 mg",
			TakenAt:  base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	entries, err := l.List(0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, w := range want {
		if entries[i].Medicine != w {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Medicine, w)
		}
	}
}

func TestLedger_List_Limit(t *testing.T) {
	l := openTestLedger(t)

	for i := 0; i < 5; i++ {
		l.Append(Entry{Medicine: "Aspirin", Dose: "10 mg"})
	}

	entries, err := l.List(2)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}
}

func TestLedger_Delete_SelectedOnly(t *testing.T) {
	l := openTestLedger(t)

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		e, err := l.Append(Entry{
			Medicine: "Med",
			Dose:     "10 mg",
			TakenAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append error: %v", err)
		}
		ids = append(ids, e.ID)
	}

	// Delete entries 1 and 3; the others keep their relative order.
	n, err := l.Delete(ids[1], ids[3])
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	entries, _ := l.List(0)
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	// Newest first: ids[4], ids[2], ids[0].
	want := []string{ids[4], ids[2], ids[0]}
	for i, w := range want {
		if entries[i].ID != w {
			t.Errorf("entries[%d].ID = %q, want %q", i, entries[i].ID, w)
		}
	}
}

func TestLedger_Delete_UnknownID(t *testing.T) {
	l := openTestLedger(t)
	l.Append(Entry{Medicine: "Med", Dose: "10 mg"})

	n, err := l.Delete("no-such-id")
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if n != 0 {
		t.Errorf("deleted %d, want 0", n)
	}
	if c, _ := l.Count(); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

func TestLedger_Delete_NoIDs(t *testing.T) {
	l := openTestLedger(t)
	if n, err := l.Delete(); err != nil || n != 0 {
		t.Errorf("Delete() = %d, %v; want 0, nil", n, err)
	}
}

func TestLedger_Clear(t *testing.T) {
	l := openTestLedger(t)

	for i := 0; i < 3; i++ {
		l.Append(Entry{Medicine: "Med", Dose: "10 mg"})
	}

	n, err := l.Clear()
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if n != 3 {
		t.Errorf("cleared %d, want 3", n)
	}
	if c, _ := l.Count(); c != 0 {
		t.Errorf("count = %d, want 0", c)
	}
}

func TestLedger_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	l1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	l1.Append(Entry{Medicine: "Aspirin", Dose: "20 mg", Image: "data:image/png;base64,xyz"})
	l1.Close()

	l2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer l2.Close()

	entries, err := l2.List(0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].Image != "data:image/png;base64,xyz" {
		t.Errorf("image not preserved: %q", entries[0].Image)
	}
}
