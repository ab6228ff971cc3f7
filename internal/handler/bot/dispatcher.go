package bot

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/dialog-lab/bot/internal/telegram"
)

var (
	// ErrQueueFull 表示该用户的队列已满，更新被丢弃。
	ErrQueueFull = errors.New("user queue is full")
	// ErrDispatcherClosed 表示调度器已关闭。
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrNoSender 表示更新不属于任何用户，直接忽略。
	ErrNoSender = errors.New("update has no sender")
)

const defaultWorkerIdle = 10 * time.Minute

// Dispatcher 按用户把更新排进各自的队列，同一用户的更新串行处理，
// 不同用户之间互不阻塞。空闲超过 idle 的 worker 会退出并从表中移除。
type Dispatcher struct {
	handler   *Handler
	queueSize int
	idle      time.Duration

	mu      sync.Mutex
	workers map[int64]chan telegram.Update
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
}

// NewDispatcher 创建调度器，worker 在 ctx 取消后停止处理新的更新。
// idle <= 0 时使用默认的 10 分钟。
func NewDispatcher(ctx context.Context, handler *Handler, queueSize int, idle time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	return &Dispatcher{
		handler:   handler,
		queueSize: queueSize,
		idle:      idle,
		workers:   make(map[int64]chan telegram.Update),
		ctx:       ctx,
	}
}

// Dispatch 将更新交给对应用户的 worker。队列已满时丢弃并返回 ErrQueueFull。
func (d *Dispatcher) Dispatch(update telegram.Update) error {
	userID, ok := updateUserID(update)
	if !ok {
		return ErrNoSender
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	jobs, ok := d.workers[userID]
	if !ok {
		jobs = make(chan telegram.Update, d.queueSize)
		d.workers[userID] = jobs
		d.wg.Add(1)
		go d.run(userID, jobs)
	}

	select {
	case jobs <- update:
		return nil
	default:
		log.Printf("[bot] queue full for user=%d, dropping update=%d", userID, update.UpdateID)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run(userID int64, jobs chan telegram.Update) {
	defer d.wg.Done()

	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case update, ok := <-jobs:
			if !ok {
				log.Printf("[bot] worker for user=%d stopped", userID)
				return
			}
			if d.ctx.Err() == nil {
				d.handler.Handle(d.ctx, update)
			}
			timer.Reset(d.idle)
		case <-timer.C:
			if d.retire(userID, jobs) {
				return
			}
			timer.Reset(d.idle)
		}
	}
}

// retire 在队列为空时移除 worker。Dispatch 持锁入队，所以移除后不会再有更新进入这个 channel。
func (d *Dispatcher) retire(userID int64, jobs chan telegram.Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(jobs) > 0 || d.workers[userID] != jobs {
		return false
	}
	delete(d.workers, userID)
	return true
}

func (d *Dispatcher) workerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Close 停止接收新的更新，并等待已排队的更新处理完毕。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, jobs := range d.workers {
		close(jobs)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func updateUserID(update telegram.Update) (int64, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID, true
	default:
		return 0, false
	}
}
