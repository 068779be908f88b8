package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/notification-center/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const defaultKeepAlive = 60 * time.Second

var ErrPoolClosed = errors.New("worker pool closed")

type Task func()

type Config struct {
	CoreSize      int
	MaxSize       int
	QueueCapacity int
	// KeepAlive is how long an overflow worker waits for work before exiting.
	KeepAlive time.Duration
}

type Stats struct {
	Workers int
	Queued  int
	Active  int
}

// Pool runs tasks on CoreSize long-lived workers fed by a bounded FIFO queue.
// When the queue is full it grows up to MaxSize workers; beyond that Submit
// fails with domain.ErrPoolSaturated.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	queue  chan Task

	overflow  *semaphore.Weighted
	keepAlive time.Duration

	wg      sync.WaitGroup
	workers atomic.Int64
	active  atomic.Int64
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.CoreSize < 1 {
		return nil, fmt.Errorf("core pool size must be >= 1, got %d", cfg.CoreSize)
	}
	if cfg.MaxSize < cfg.CoreSize {
		return nil, fmt.Errorf("max pool size %d must be >= core pool size %d", cfg.MaxSize, cfg.CoreSize)
	}
	if cfg.QueueCapacity < 0 {
		return nil, fmt.Errorf("queue capacity must be >= 0, got %d", cfg.QueueCapacity)
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		queue:     make(chan Task, cfg.QueueCapacity),
		overflow:  semaphore.NewWeighted(int64(cfg.MaxSize - cfg.CoreSize)),
		keepAlive: cfg.KeepAlive,
		logger:    logger,
	}

	for i := 0; i < cfg.CoreSize; i++ {
		p.startWorker(p.coreLoop)
	}

	return p, nil
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		return nil
	default:
	}

	if p.overflow.TryAcquire(1) {
		p.startWorker(func() {
			defer p.overflow.Release(1)
			p.overflowLoop(task)
		})
		return nil
	}

	return domain.ErrPoolSaturated
}

// Shutdown stops intake and waits for queued and running tasks to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers: int(p.workers.Load()),
		Queued:  len(p.queue),
		Active:  int(p.active.Load()),
	}
}

func (p *Pool) startWorker(loop func()) {
	p.wg.Add(1)
	p.workers.Add(1)
	go func() {
		defer func() {
			p.workers.Add(-1)
			p.wg.Done()
		}()
		loop()
	}()
}

func (p *Pool) coreLoop() {
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool) overflowLoop(first Task) {
	p.run(first)

	idle := time.NewTimer(p.keepAlive)
	defer idle.Stop()

	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(task)
			idle.Reset(p.keepAlive)
		case <-idle.C:
			return
		}
	}
}

func (p *Pool) run(task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", zap.Any("panic", r))
		}
	}()

	task()
}
