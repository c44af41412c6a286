package patch

import (
	"testing"
	"time"

	"pubkey-quest/engine/logging"
)

func TestJournalEvictsByCapacity(t *testing.T) {
	now := time.Unix(100, 0)
	journal := NewJournal(2, time.Minute, logging.ClockFunc(func() time.Time { return now }))

	journal.Record(1, Delta{Hunger: intPtr(1)}, []string{"hunger"})
	journal.Record(2, Delta{Gold: intPtr(5)}, []string{"gold"})
	journal.Record(3, Delta{HP: intPtr(9)}, []string{"hp"})

	entries := journal.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 retained entries, got %d", len(entries))
	}
	if entries[0].Seq != 2 || entries[1].Seq != 3 {
		t.Fatalf("expected oldest entry evicted, got seqs %d,%d", entries[0].Seq, entries[1].Seq)
	}
}

func TestJournalEvictsByAge(t *testing.T) {
	now := time.Unix(100, 0)
	journal := NewJournal(10, 5*time.Second, logging.ClockFunc(func() time.Time { return now }))

	journal.Record(1, Delta{Hunger: intPtr(1)}, []string{"hunger"})
	now = now.Add(10 * time.Second)
	journal.Record(2, Delta{Gold: intPtr(5)}, []string{"gold"})

	entries := journal.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected stale entry evicted, got %d entries", len(entries))
	}
	if entries[0].Seq != 2 {
		t.Fatalf("expected surviving entry seq 2, got %d", entries[0].Seq)
	}
}

func TestJournalRecordsTickAndRegions(t *testing.T) {
	journal := NewJournal(4, time.Minute, logging.ClockFunc(func() time.Time { return time.Unix(10, 0) }))

	entry := journal.Record(7, Delta{TravelProgress: float64Ptr(0.5)}, []string{"travel_progress"})
	if entry.Tick != 7 {
		t.Fatalf("expected tick 7, got %d", entry.Tick)
	}
	if len(entry.Regions) != 1 || entry.Regions[0] != "travel_progress" {
		t.Fatalf("unexpected regions: %v", entry.Regions)
	}
	if journal.Len() != 1 {
		t.Fatalf("expected journal length 1, got %d", journal.Len())
	}
}

func TestJournalDrainEmptiesButKeepsSequence(t *testing.T) {
	journal := NewJournal(4, time.Minute, logging.ClockFunc(func() time.Time { return time.Unix(10, 0) }))

	journal.Record(1, Delta{Hunger: intPtr(1)}, []string{"hunger"})
	journal.Record(2, Delta{Gold: intPtr(5)}, []string{"gold"})

	drained := journal.Drain()
	if len(drained) != 2 || drained[0].Seq != 1 || drained[1].Seq != 2 {
		t.Fatalf("unexpected drain: %+v", drained)
	}
	if journal.Len() != 0 {
		t.Fatalf("expected empty journal after drain, got %d", journal.Len())
	}
	if again := journal.Drain(); again != nil {
		t.Fatalf("expected nil drain on empty journal, got %+v", again)
	}

	entry := journal.Record(3, Delta{HP: intPtr(9)}, []string{"hp"})
	if entry.Seq != 3 {
		t.Fatalf("expected sequence to continue at 3, got %d", entry.Seq)
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
