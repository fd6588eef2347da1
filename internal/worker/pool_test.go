package worker

import (
	"sync/atomic"
	"testing"
)

func TestBandsSplitsIntoFourWithRemainderOnLast(t *testing.T) {
	bands := Bands(0, 0, 10, 10, 4)
	total := 0
	for i, b := range bands {
		total += b.H
		if i < Count-1 && b.H != 2 {
			t.Fatalf("band %d: expected height 2, got %d", i, b.H)
		}
	}
	if total != 10 {
		t.Fatalf("expected bands to sum to 10 rows, got %d", total)
	}
	if bands[Count-1].H != 2+10%Count {
		t.Fatalf("expected last band to absorb remainder, got %d", bands[Count-1].H)
	}
}

func TestRunJoinsAllBands(t *testing.T) {
	p := New()
	bands := Bands(0, 0, 8, 8, 4)
	var count int32
	err := p.Run(bands, func(b Band) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != Count {
		t.Fatalf("expected %d band executions, got %d", Count, count)
	}
}
