package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/asyncflow/pkg/types"
)

func sumCounts(counts []WorkerCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return total
}

func TestAggregator_EmptySnapshot(t *testing.T) {
	a := NewAggregator()

	s := a.Snapshot()
	assert.Equal(t, int64(0), s.Produced)
	assert.Equal(t, int64(0), s.Consumed)
	assert.Equal(t, int64(0), s.Errors)
	assert.Equal(t, time.Duration(0), s.AverageWait, "average wait is zero with nothing consumed")
	assert.Equal(t, int64(0), s.AverageWaitMillis())
}

func TestAggregator_AverageWait(t *testing.T) {
	a := NewAggregator()

	a.RecordConsumed("C1", 100*time.Millisecond, false)
	a.RecordConsumed("C2", 300*time.Millisecond, true)
	a.RecordConsumed("C1", 200*time.Millisecond, false)

	s := a.Snapshot()
	assert.Equal(t, int64(3), s.Consumed)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, 600*time.Millisecond, s.CumulativeWait)
	assert.Equal(t, 200*time.Millisecond, s.AverageWait)
	assert.Equal(t, int64(200), s.AverageWaitMillis())
}

func TestAggregator_NegativeWaitClamped(t *testing.T) {
	a := NewAggregator()
	a.RecordConsumed("C1", -time.Second, false)

	s := a.Snapshot()
	assert.Equal(t, time.Duration(0), s.CumulativeWait)
	assert.GreaterOrEqual(t, s.AverageWait, time.Duration(0))
}

func TestAggregator_WorkerCounts(t *testing.T) {
	a := NewAggregator()

	a.RegisterWorker(types.RoleProducer, "P1")
	a.RegisterWorker(types.RoleProducer, "P2")
	a.RegisterWorker(types.RoleConsumer, "C1")

	a.RecordProduced("P2")
	a.RecordProduced("P2")
	a.RecordProduced("P1")

	// registering again keeps the historical count
	a.RegisterWorker(types.RoleProducer, "P2")

	assert.Equal(t, []WorkerCount{{"P1", 1}, {"P2", 2}}, a.WorkerCounts(types.RoleProducer))
	assert.Equal(t, []WorkerCount{{"C1", 0}}, a.WorkerCounts(types.RoleConsumer))

	// unregistered names are added on first record
	a.RecordConsumed("C9", 0, false)
	assert.Equal(t, []WorkerCount{{"C1", 0}, {"C9", 1}}, a.WorkerCounts(types.RoleConsumer))
}

func TestAggregator_Reset(t *testing.T) {
	a := NewAggregator()
	a.RegisterWorker(types.RoleProducer, "P1")
	a.RecordProduced("P1")
	a.RecordConsumed("C1", time.Second, true)

	a.Reset()

	assert.Equal(t, Snapshot{}, a.Snapshot())
	assert.Empty(t, a.WorkerCounts(types.RoleProducer))
	assert.Empty(t, a.WorkerCounts(types.RoleConsumer))
}

func TestAggregator_ConcurrentInvariants(t *testing.T) {
	const (
		workers = 8
		perWork = 1000
	)

	a := NewAggregator()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("P%d", w+1)
			for i := 0; i < perWork; i++ {
				a.RecordProduced(name)
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("C%d", w+1)
			for i := 0; i < perWork; i++ {
				a.RecordConsumed(name, time.Millisecond, i%10 == 0)
			}
		}(w)
	}

	// concurrent readers always see a consistent average
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s := a.Snapshot()
			if s.Consumed > 0 {
				assert.Equal(t, s.CumulativeWait/time.Duration(s.Consumed), s.AverageWait)
			}
		}
	}()

	wg.Wait()
	<-done

	s := a.Snapshot()
	require.Equal(t, int64(workers*perWork), s.Produced)
	require.Equal(t, int64(workers*perWork), s.Consumed)
	assert.Equal(t, int64(workers*perWork/10), s.Errors)
	assert.Equal(t, s.Produced, sumCounts(a.WorkerCounts(types.RoleProducer)))
	assert.Equal(t, s.Consumed, sumCounts(a.WorkerCounts(types.RoleConsumer)))
	assert.Equal(t, time.Millisecond, s.AverageWait)
}

func TestAggregator_NotifiesAfterMutation(t *testing.T) {
	n := NewNotifier()
	a := NewAggregator(WithNotifier(n))
	require.Same(t, n, a.Notifier())

	ch, cancel := n.Subscribe()
	defer cancel()

	a.RecordProduced("P1")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after RecordProduced")
	}

	// the signal is sent after the lock is released, so a snapshot
	// taken on notification already includes the mutation
	a.RecordConsumed("C1", time.Millisecond, false)
	<-ch
	assert.Equal(t, int64(1), a.Snapshot().Consumed)
}

func TestAggregator_ReportIsConsistentUnderWrites(t *testing.T) {
	a := NewAggregator()
	a.RegisterWorker(types.RoleProducer, "P1")
	a.RegisterWorker(types.RoleConsumer, "C1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			a.RecordProduced("P1")
			a.RecordConsumed("C1", time.Millisecond, i%10 == 0)
		}
	}()

	for {
		r := a.Report()
		require.Len(t, r.Producers, 1)
		require.Len(t, r.Consumers, 1)
		assert.Equal(t, r.Produced, r.Producers[0].Count)
		assert.Equal(t, r.Consumed, r.Consumers[0].Count)

		select {
		case <-done:
			final := a.Report()
			assert.Equal(t, int64(2000), final.Produced)
			assert.Equal(t, int64(200), final.Errors)
			return
		default:
		}
	}
}
