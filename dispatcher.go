package main

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const adminQueueSize = 32

// dispatcher runs updates of one admin strictly in order on that admin's own worker,
// while different admins proceed in parallel.
type dispatcher struct {
	handle func(context.Context, tgbotapi.Update)
	log    *zap.Logger

	mu     sync.Mutex
	queues map[int64]chan tgbotapi.Update
	closed bool
	wg     sync.WaitGroup
}

func newDispatcher(handle func(context.Context, tgbotapi.Update), log *zap.Logger) *dispatcher {
	return &dispatcher{
		handle: handle,
		log:    log.Named("dispatcher"),
		queues: make(map[int64]chan tgbotapi.Update),
	}
}

// Dispatch queues update for admin without blocking. It returns false when the
// dispatcher is closed or the admin's queue is full, in which case the update is dropped.
func (d *dispatcher) Dispatch(ctx context.Context, admin int64, update tgbotapi.Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, ok := d.queues[admin]
	if !ok {
		q = make(chan tgbotapi.Update, adminQueueSize)
		d.queues[admin] = q
		d.wg.Add(1)
		go d.worker(ctx, admin, q)
	}

	select {
	case q <- update:
		return true
	default:
		d.log.Warn("admin queue full, update dropped", zap.Int64("admin", admin), zap.Int("update_id", update.UpdateID))
		return false
	}
}

func (d *dispatcher) worker(ctx context.Context, admin int64, q <-chan tgbotapi.Update) {
	defer d.wg.Done()
	d.log.Debug("admin worker started", zap.Int64("admin", admin))
	for update := range q {
		d.handle(ctx, update)
	}
}

// Close stops accepting updates and waits until every queued update is handled.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for admin, q := range d.queues {
		close(q)
		delete(d.queues, admin)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
