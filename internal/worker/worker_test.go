package worker

import (
	"fmt"
	"testing"
	"time"

	"momentum-arb-bot/internal/database"
)

func rotationWorker(threshold, window int) *Worker {
	return &Worker{
		opts:    Options{RotationThreshold: threshold, RotationWindow: window},
		cursors: make(map[string]int),
	}
}

func assetList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("A%02d", i)
	}
	return out
}

func assertBatch(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("batch = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch[%d] = %s, want %s (batch %v)", i, got[i], want[i], want)
		}
	}
}

func TestRotationBatchShortListProcessedWhole(t *testing.T) {
	w := rotationWorker(30, 25)
	strat := &database.Strategy{ID: "s1", Assets: assetList(10)}

	for tick := 0; tick < 3; tick++ {
		assertBatch(t, w.rotationBatch(strat), strat.Assets)
	}
	if w.cursors["s1"] != 0 {
		t.Errorf("cursor moved to %d for a short list", w.cursors["s1"])
	}
}

func TestRotationBatchAdvancesAndWraps(t *testing.T) {
	w := rotationWorker(30, 25)
	all := assetList(60)
	strat := &database.Strategy{ID: "s1", Assets: all}

	assertBatch(t, w.rotationBatch(strat), all[0:25])
	assertBatch(t, w.rotationBatch(strat), all[25:50])

	// Third window wraps: 50..59 then 0..14.
	want := append(append([]string{}, all[50:60]...), all[0:15]...)
	assertBatch(t, w.rotationBatch(strat), want)

	// Fourth window resumes after the wrap point.
	assertBatch(t, w.rotationBatch(strat), all[15:40])
}

func TestRotationBatchThresholdBoundary(t *testing.T) {
	w := rotationWorker(30, 25)

	at := &database.Strategy{ID: "at", Assets: assetList(30)}
	assertBatch(t, w.rotationBatch(at), at.Assets)

	over := &database.Strategy{ID: "over", Assets: assetList(31)}
	if got := w.rotationBatch(over); len(got) != 25 {
		t.Errorf("over-threshold batch has %d assets, want 25", len(got))
	}
}

func TestRotationBatchCursorsIndependentPerStrategy(t *testing.T) {
	w := rotationWorker(30, 25)
	all := assetList(60)
	s1 := &database.Strategy{ID: "s1", Assets: all}
	s2 := &database.Strategy{ID: "s2", Assets: all}

	assertBatch(t, w.rotationBatch(s1), all[0:25])
	assertBatch(t, w.rotationBatch(s2), all[0:25])
	assertBatch(t, w.rotationBatch(s1), all[25:50])
	assertBatch(t, w.rotationBatch(s2), all[25:50])
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}
	opts.applyDefaults()

	if opts.Tick != 60*time.Second {
		t.Errorf("tick = %s, want 60s", opts.Tick)
	}
	if opts.RotationThreshold != 30 || opts.RotationWindow != 25 || opts.ParallelBatch != 5 {
		t.Errorf("defaults = %d/%d/%d, want 30/25/5",
			opts.RotationThreshold, opts.RotationWindow, opts.ParallelBatch)
	}
}
