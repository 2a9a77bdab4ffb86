package tracker

import (
	"sync"

	"github.com/blues/crowdsync/internal/logger"
	"github.com/blues/crowdsync/internal/model"
)

// StatusObserver 状态变迁观察者
// errMessage 仅在变迁到 failed 时可能非空
type StatusObserver func(txHash string, status model.TransactionStatus, errMessage string)

// observerRegistry 观察者注册表，按订阅顺序投递
type observerRegistry struct {
	mu     sync.RWMutex
	nextId int64
	subs   []subscription
}

type subscription struct {
	id int64
	fn StatusObserver
}

// subscribe 注册观察者，返回取消订阅函数
func (r *observerRegistry) subscribe(fn StatusObserver) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextId++
	id := r.nextId
	r.subs = append(r.subs, subscription{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// notify 向所有观察者广播
// 单个观察者 panic 不影响其他观察者，也不影响状态更新本身
func (r *observerRegistry) notify(txHash string, status model.TransactionStatus, errMessage string) {
	r.mu.RLock()
	subs := make([]subscription, len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("Status observer %d panicked for tx %s: %v", s.id, txHash, p)
				}
			}()
			s.fn(txHash, status, errMessage)
		}()
	}
}
