package execution

import (
	"context"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Shyp/jobqueue/storage"
)

const defaultSleepFactor = 2

// 10ms * 2^10 ~ 10 seconds between consecutive failed lease attempts, the
// same backoff shape as rickover's dequeuer.Dequeuer.Work. Empty polls sleep
// ProcessCheckInterval instead.
var maxMultiplier = math.Pow(2, 10)

// Loop drives the Execution Loop's should_run poll, per spec.md §4.6.
type Loop struct {
	Port                 storage.Port
	Clock                clockwork.Clock
	ProcessCheckInterval time.Duration
	WorkerTimeout        time.Duration
	WorkerPid            string

	failedLeaseCount int
}

// NewLoop builds a Loop with a real clock and the given tunables.
func NewLoop(port storage.Port, processCheckInterval, workerTimeout time.Duration) *Loop {
	return &Loop{
		Port:                 port,
		Clock:                clockwork.NewRealClock(),
		ProcessCheckInterval: processCheckInterval,
		WorkerTimeout:        workerTimeout,
		WorkerPid:            pidString(),
	}
}

func pidString() string {
	return strconv.Itoa(os.Getpid())
}

func jitter(val float64) float64 {
	return val*0.8 + rand.Float64()*0.2*2*val
}

// Run drives should_run: lease_next/run in a cycle until worker_timeout
// elapses or ctx is cancelled (by the SIGTERM/SIGINT handler installed in
// RunUntilSignal).
func (l *Loop) Run(ctx context.Context) {
	start := l.Clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := leaseNext(ctx, l.Port, l.WorkerPid)
		switch {
		case err != nil:
			logf("lease_next error: %s", err)
			l.sleepAfterFailure()
		case job == nil:
			l.failedLeaseCount = 0
			l.Clock.Sleep(l.ProcessCheckInterval)
		default:
			l.failedLeaseCount = 0
			run(ctx, l.Port, job, l.Clock)
		}

		if l.Clock.Now().Sub(start) > l.WorkerTimeout {
			return
		}
	}
}

func (l *Loop) sleepAfterFailure() {
	l.failedLeaseCount++
	multiplier := math.Pow(defaultSleepFactor, float64(l.failedLeaseCount))
	if multiplier > maxMultiplier {
		multiplier = maxMultiplier
	}
	multiplier = jitter(multiplier)
	l.Clock.Sleep(10 * time.Duration(multiplier) * time.Millisecond)
}

// RunUntilSignal runs the loop until it completes its worker_timeout budget
// or the process receives SIGTERM/SIGINT, whichever comes first, per
// spec.md §4.5's shutdown-handler requirement. release is called exactly
// once before returning, typically supervisor.AcquireLock's release func.
func (l *Loop) RunUntilSignal(release func()) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-sigCh:
		cancel()
		<-done
	case <-done:
	}
	release()
}
