package bulk

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSequentialExecution(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	var executed []string

	op := &Operation{Jobs: 1}
	result := op.Execute(context.Background(), items, func(_ context.Context, item string) error {
		executed = append(executed, item)
		return nil
	})

	if result.TotalItems != 5 || result.Succeeded != 5 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	for i, item := range items {
		if executed[i] != item {
			t.Errorf("Order not preserved: expected %s at index %d, got %s", item, i, executed[i])
		}
	}
	if err := result.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestParallelExecutionRespectsJobs(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var (
		mu       sync.Mutex
		executed = make(map[string]bool)
		running  int32
		peak     int32
	)

	op := &Operation{Jobs: 3}
	result := op.Execute(context.Background(), items, func(_ context.Context, item string) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)

		mu.Lock()
		executed[item] = true
		mu.Unlock()
		return nil
	})

	if result.Succeeded != len(items) {
		t.Errorf("Succeeded = %d, want %d", result.Succeeded, len(items))
	}
	for _, item := range items {
		if !executed[item] {
			t.Errorf("Item %s was not executed", item)
		}
	}
	if peak > 3 {
		t.Errorf("peak concurrency %d exceeds 3 jobs", peak)
	}
}

func TestStopOnFirstError(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	boom := errors.New("boom")

	op := &Operation{Jobs: 1}
	result := op.Execute(context.Background(), items, func(_ context.Context, item string) error {
		if item == "b" {
			return boom
		}
		return nil
	})

	if result.Succeeded != 1 || result.Failed != 1 || result.Skipped != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
	if err := result.Err(); !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "b:") {
		t.Errorf("Err() = %v", err)
	}
}

func TestContinueOnError(t *testing.T) {
	items := []string{"a", "b", "c", "d"}

	op := &Operation{Jobs: 2, ContinueOnError: true}
	result := op.Execute(context.Background(), items, func(_ context.Context, item string) error {
		if item == "a" || item == "c" {
			return errors.New("failed " + item)
		}
		return nil
	})

	if result.Succeeded != 2 || result.Failed != 2 || result.Skipped != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Errors[0].Item != "a" || result.Errors[1].Item != "c" {
		t.Errorf("errors not in input order: %+v", result.Errors)
	}
	if err := result.Err(); err == nil || err.Error() != "2 of 4 operations failed" {
		t.Errorf("Err() = %v", err)
	}

	var buf bytes.Buffer
	result.PrintSummary(&buf)
	if !strings.Contains(buf.String(), "Partial success: 2 succeeded, 2 failed") {
		t.Errorf("unexpected summary:\n%s", buf.String())
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := &Operation{Jobs: 2}
	result := op.Execute(ctx, []string{"a", "b"}, func(context.Context, string) error {
		t.Error("no item should run after cancellation")
		return nil
	})
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}
}

func TestEmpty(t *testing.T) {
	op := &Operation{}
	result := op.Execute(context.Background(), nil, nil)
	if result.TotalItems != 0 || result.Err() != nil {
		t.Errorf("unexpected result: %+v", result)
	}
}
