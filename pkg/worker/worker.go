package worker

import (
	"errors"
	"hash/fnv"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/nimasrn/balance-bot/pkg/logger"
)

var ErrStopped = errors.New("worker manager stopped")

type WorkerHandler = func(workerIndex int, job interface{})

// WorkerManager runs a fixed pool of goroutines, each draining its own lane.
// Jobs enqueued with the same key always land on the same lane, so they run
// one after another in enqueue order; different keys run concurrently.
type WorkerManager struct {
	bufferSize     int
	numberOfWorker int
	lanes          []chan interface{}
	sigTerm        chan os.Signal
	quit           chan struct{}
	exitOnce       sync.Once
	do             WorkerHandler
	waiter         *sync.WaitGroup
	next           atomic.Uint64
}

// NewWorkerManager creates numberOfWorkers lanes of bufferSize each. SIGTERM
// stops the pool like Exit does.
func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	lanes := make([]chan interface{}, numberOfWorkers)
	for i := range lanes {
		lanes[i] = make(chan interface{}, bufferSize)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		lanes:          lanes,
		sigTerm:        sigChan,
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	var n int64
	for _, lane := range w.lanes {
		n += int64(len(lane))
	}
	return n
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue publishes a job on the next lane in round-robin order.
func (w *WorkerManager) Enqueue(val interface{}) error {
	idx := int(w.next.Add(1) % uint64(w.numberOfWorker))
	return w.push(idx, val)
}

// EnqueueKeyed publishes a job on the lane owned by key.
func (w *WorkerManager) EnqueueKeyed(key string, val interface{}) error {
	return w.push(w.LaneFor(key), val)
}

// LaneFor reports the lane index a key maps to.
func (w *WorkerManager) LaneFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(w.numberOfWorker))
}

func (w *WorkerManager) push(idx int, val interface{}) error {
	select {
	case <-w.quit:
		return ErrStopped
	default:
	}

	select {
	case w.lanes[idx] <- val:
		return nil
	case <-w.quit:
		return ErrStopped
	}
}

// Start runs the workers and blocks until Exit is called or SIGTERM arrives.
func (w *WorkerManager) Start() error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}

	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.lanes[index]:
					w.do(index, job)
				case <-w.quit:
					return
				}
			}
		}(i)
	}

	go func() {
		select {
		case <-w.sigTerm:
			w.Exit()
		case <-w.quit:
		}
	}()

	w.waiter.Wait()

	return errors.New("workers terminated")
}

// Exit stops every worker after its current job. Queued jobs are dropped.
func (w *WorkerManager) Exit() {
	w.exitOnce.Do(func() {
		logger.Info("Exit() is called and worker manager is going to be shutdown")
		signal.Stop(w.sigTerm)
		close(w.quit)
	})
}
