package xsegroute

import (
	"sync"
	"sync/atomic"
)

// inbox 有界 FIFO 收件箱，只有一个消费者。
//
// 投递方永不阻塞：队列满或已停止时丢弃，并通过 onDrop 报告。
// 停止后消费者会处理完队列中剩余的行再退出。
type inbox struct {
	queue chan string

	// mu 保证 stop 关闭队列时没有进行中的投递
	mu      sync.RWMutex
	stopped bool

	// dropping 标记当前处于连续丢弃区间，每个区间只上报一次
	dropping atomic.Bool
	onDrop   func(err error, first bool)
	onQueued func()
}

func newInbox(size int, onDrop func(err error, first bool), onQueued func()) *inbox {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &inbox{
		queue:    make(chan string, size),
		onDrop:   onDrop,
		onQueued: onQueued,
	}
}

// send 投递一行。成功入队返回 true。
func (b *inbox) send(line string) bool {
	if err := b.enqueue(line); err != nil {
		b.drop(err)
		return false
	}
	b.dropping.Store(false)
	if b.onQueued != nil {
		b.onQueued()
	}
	return true
}

// enqueue 非阻塞入队。丢弃的上报在锁外进行，回调中可以安全地关闭写者。
func (b *inbox) enqueue(line string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		return ErrWriterClosed
	}
	select {
	case b.queue <- line:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *inbox) drop(err error) {
	first := b.dropping.CompareAndSwap(false, true)
	if b.onDrop != nil {
		b.onDrop(err, first)
	}
}

// consume 按入队顺序把每一行交给 handle，直到队列关闭且排空。
// 只能由唯一的消费者调用。
func (b *inbox) consume(handle func(string)) {
	for line := range b.queue {
		handle(line)
	}
}

// stop 拒绝新的投递并关闭队列，消费者排空后退出。可重复调用。
func (b *inbox) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true
	close(b.queue)
}

// len 返回当前排队的行数。
func (b *inbox) len() int {
	return len(b.queue)
}

// isStopped 报告收件箱是否已停止投递。
func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}
