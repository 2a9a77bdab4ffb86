package retry

import (
	"context"
	"time"

	"github.com/blues/crowdsync/internal/logger"
)

// Config 退避重试配置
type Config struct {
	MaxAttempts  int           // 最大尝试次数（含首次）
	InitialDelay time.Duration // 首次失败后的等待时间
	MaxDelay     time.Duration // 等待时间上限，默认为 InitialDelay 的10倍
	Multiplier   float64       // 每次失败后的放大系数，默认为2
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.InitialDelay * 10
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	return c
}

// wait 可注入的等待函数，测试时替换
var wait = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do 以指数退避执行 op，首次立即执行
// 成功立即返回；连续失败 MaxAttempts 次后返回最后一次的错误
func Do(ctx context.Context, name string, op func() error, cfg Config) error {
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("%s succeeded after %d retries", name, attempt-1)
			}
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn("%s failed (attempt %d/%d), retrying in %s: %v",
			name, attempt, cfg.MaxAttempts, delay, lastErr)

		if err := wait(ctx, delay); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
