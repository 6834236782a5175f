package heap

import "github.com/cupidthecat/cupid-os/internal/pmm"

// Record is one allocation-tracker slot (spec.md §3's "Allocation
// tracker").
type Record struct {
	Addr      pmm.Addr
	Size      uint32
	Timestamp int64
	Tag       string
	Active    bool
}

// Tracker is a ring of up to N records with derived active/peak counters.
// The rotated slot index never goes backward: it is a strictly increasing
// counter modulo N, so two records never swap places once written.
type Tracker struct {
	records []Record
	next    uint64 // monotonic write cursor

	activeCount int
	activeBytes uint64
	peakCount   int
	peakBytes   uint64
}

func newTracker(n int) *Tracker {
	return &Tracker{records: make([]Record, n)}
}

func (t *Tracker) record(addr pmm.Addr, size uint32, ts int64, tag string) {
	slot := t.records[t.next%uint64(len(t.records))]
	if slot.Active {
		t.activeCount--
		t.activeBytes -= uint64(slot.Size)
	}
	t.records[t.next%uint64(len(t.records))] = Record{
		Addr: addr, Size: size, Timestamp: ts, Tag: tag, Active: true,
	}
	t.next++

	t.activeCount++
	t.activeBytes += uint64(size)
	if t.activeCount > t.peakCount {
		t.peakCount = t.activeCount
	}
	if t.activeBytes > t.peakBytes {
		t.peakBytes = t.activeBytes
	}
}

func (t *Tracker) release(addr pmm.Addr) {
	for i := range t.records {
		if t.records[i].Active && t.records[i].Addr == addr {
			t.records[i].Active = false
			t.activeCount--
			t.activeBytes -= uint64(t.records[i].Size)
			return
		}
	}
}

// leaks returns active records whose timestamp is older than
// (now - threshold).
func (t *Tracker) leaks(now, threshold int64) []Record {
	var out []Record
	for _, r := range t.records {
		if r.Active && now-r.Timestamp > threshold {
			out = append(out, r)
		}
	}
	return out
}
