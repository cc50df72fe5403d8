package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/gecofarm/farm-session/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

type keyedTask struct {
	key string
	run func(ctx context.Context)
}

// Dispatcher routes tasks to a fixed set of workers using consistent hashing
// on the task key, guaranteeing that tasks sharing a key run one at a time and
// in submission order.
type Dispatcher struct {
	workers []chan keyedTask
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan keyedTask, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan keyedTask, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Submit sends task to the worker responsible for key.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Submit(key string, task func(ctx context.Context)) {
	idx := d.shardIndex(key)
	d.workers[idx] <- keyedTask{key: key, run: task}
	metrics.TaskQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan keyedTask) {
	depth := metrics.TaskQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-ch:
			if !ok {
				return
			}
			depth.Set(float64(len(ch)))
			d.run(ctx, id, task)
		}
	}
}

// run executes one task; a panicking task must not take its worker down.
func (d *Dispatcher) run(ctx context.Context, id int, task keyedTask) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("key", task.key).
				Int("worker_id", id).
				Msg("task panicked")
		}
	}()
	task.run(ctx)
}
