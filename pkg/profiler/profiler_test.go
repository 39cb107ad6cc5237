package profiler

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGetStats(t *testing.T) {
	p := NewProfiler()
	for i := 1; i <= 100; i++ {
		p.Record("classify", time.Duration(i)*time.Millisecond)
	}

	s := p.GetStats("classify")
	if s.Count != 100 {
		t.Errorf("Count = %d, expected 100", s.Count)
	}
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min = %v, Max = %v", s.Min, s.Max)
	}
	if s.P95 != 95*time.Millisecond {
		t.Errorf("P95 = %v, expected 95ms", s.P95)
	}
	if s.P99 != 99*time.Millisecond {
		t.Errorf("P99 = %v, expected 99ms", s.P99)
	}
	if s.Average != 50500*time.Microsecond {
		t.Errorf("Average = %v, expected 50.5ms", s.Average)
	}

	if empty := p.GetStats("missing"); empty.Count != 0 {
		t.Errorf("unknown stage Count = %d, expected 0", empty.Count)
	}
}

func TestSingleSample(t *testing.T) {
	p := NewProfiler()
	p.Record("startup", 3*time.Second)

	s := p.GetStats("startup")
	if s.P95 != 3*time.Second || s.P99 != 3*time.Second || s.Median != 3*time.Second {
		t.Errorf("single sample stats = %+v", s)
	}
}

func TestObserveConcurrently(t *testing.T) {
	p := NewProfiler()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.ObserveClassification("money", i%5 != 0, time.Microsecond)
			}
		}()
	}
	wg.Wait()

	if n := p.GetStats(StageClassify).Count; n != 320 {
		t.Errorf("classify count = %d, expected 320", n)
	}
	if n := p.GetStats(StageNoEvidence).Count; n != 80 {
		t.Errorf("default count = %d, expected 80", n)
	}
}

func TestTimerAndReport(t *testing.T) {
	p := NewProfiler()
	timer := p.Start(StageStartup)
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}

	var buf bytes.Buffer
	p.Write(&buf)
	if !strings.Contains(buf.String(), StageStartup) {
		t.Errorf("report missing stage:\n%s", buf.String())
	}

	p.Reset()
	buf.Reset()
	p.Write(&buf)
	if !strings.Contains(buf.String(), "No timing data") {
		t.Errorf("expected empty report, got:\n%s", buf.String())
	}
}
