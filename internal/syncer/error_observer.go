package syncer

import (
	"sync"
	"time"

	"github.com/blues/crowdsync/internal/logger"
)

// SyncError 同步失败上下文
type SyncError struct {
	Operation       string    `json:"operation"`
	Timestamp       time.Time `json:"timestamp"`
	LastSyncedBlock int64     `json:"last_synced_block"`
	Err             error     `json:"-"`
}

// ErrorObserver 同步错误观察者
type ErrorObserver func(SyncError)

// errorRegistry 错误观察者注册表，按订阅顺序投递
type errorRegistry struct {
	mu     sync.RWMutex
	nextId int64
	subs   []errorSubscription
}

type errorSubscription struct {
	id int64
	fn ErrorObserver
}

// subscribe 注册观察者，返回取消订阅函数
func (r *errorRegistry) subscribe(fn ErrorObserver) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextId++
	id := r.nextId
	r.subs = append(r.subs, errorSubscription{id: id, fn: fn})

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

// notify 向所有观察者广播，单个观察者 panic 不影响其他观察者
func (r *errorRegistry) notify(syncErr SyncError) {
	r.mu.RLock()
	subs := make([]errorSubscription, len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("Sync error observer %d panicked: %v", s.id, p)
				}
			}()
			s.fn(syncErr)
		}()
	}
}
