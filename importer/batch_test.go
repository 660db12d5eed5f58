package importer

import (
	"testing"

	"bitbucket.org/mmdatafocus/csvfilereader/models"
)

func TestAccumulator_DrainsAtThreshold(t *testing.T) {
	acc := NewAccumulator[int](3)
	var batches []Batch[int]
	for i := 1; i <= 7; i++ {
		if acc.Add(i) {
			batches = append(batches, acc.Drain())
		}
	}
	if rest, ok := acc.Remainder(); ok {
		batches = append(batches, rest)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	sizes := []int{3, 3, 1}
	for i, b := range batches {
		if b.Len() != sizes[i] {
			t.Fatalf("batch %d: expected %d rows, got %d", i, sizes[i], b.Len())
		}
		if b.Seq != i+1 {
			t.Fatalf("batch %d: expected seq %d, got %d", i, i+1, b.Seq)
		}
		if b.Final != (i == 2) {
			t.Fatalf("batch %d: unexpected Final=%v", i, b.Final)
		}
	}
	if batches[2].Rows[0] != 7 {
		t.Fatalf("expected remainder to hold row 7, got %v", batches[2].Rows)
	}
}

func TestAccumulator_ExactMultipleHasNoRemainder(t *testing.T) {
	acc := NewAccumulator[int](2)
	drained := 0
	for i := 0; i < 4; i++ {
		if acc.Add(i) {
			acc.Drain()
			drained++
		}
	}
	if drained != 2 {
		t.Fatalf("expected 2 drains, got %d", drained)
	}
	if _, ok := acc.Remainder(); ok {
		t.Fatalf("expected no remainder")
	}
}

func TestAccumulator_ThresholdOneAndLargerThanInput(t *testing.T) {
	one := NewAccumulator[string](0)
	if !one.Add("a") {
		t.Fatalf("size is clamped to 1; first row should fill the batch")
	}

	big := NewAccumulator[string](10)
	for _, s := range []string{"a", "b", "c"} {
		if big.Add(s) {
			t.Fatalf("batch should not fill before the threshold")
		}
	}
	rest, ok := big.Remainder()
	if !ok || rest.Len() != 3 || !rest.Final || rest.Seq != 1 {
		t.Fatalf("unexpected remainder: %+v ok=%v", rest, ok)
	}
}

func TestAccumulator_DrainedBatchIsNotReused(t *testing.T) {
	acc := NewAccumulator[int](2)
	acc.Add(1)
	acc.Add(2)
	first := acc.Drain()
	acc.Add(3)
	if first.Rows[0] != 1 || first.Rows[1] != 2 {
		t.Fatalf("drained batch was overwritten: %v", first.Rows)
	}
}

func TestAccumulator_LargeThresholdDoesNotPreallocate(t *testing.T) {
	acc := NewAccumulator[models.Employee](10_000_000)
	if cap(acc.buf) != 0 {
		t.Fatalf("expected no buffer before the first row, got cap %d", cap(acc.buf))
	}
	for i := 0; i < 3; i++ {
		acc.Add(models.Employee{})
	}
	if cap(acc.buf) > 16 {
		t.Fatalf("expected buffer sized to the rows read, got cap %d", cap(acc.buf))
	}
	rest, ok := acc.Remainder()
	if !ok || rest.Len() != 3 {
		t.Fatalf("unexpected remainder: %d rows ok=%v", rest.Len(), ok)
	}
	if acc.buf != nil {
		t.Fatalf("expected drained buffer to be released")
	}
}
