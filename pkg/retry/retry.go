package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// リトライ関連の定数
	DefaultMaxAttempts = 5 // 初回を含む最大試行回数

	// バックオフのカスタム設定 (0.5s, 1s, 2s, 4s, ... と厳密に倍増)
	InitialBackoffInterval = 500 * time.Millisecond
	BackoffMultiplier      = 2.0
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	// MaxInterval が 0 の場合、待機時間に上限を設けません。
	MaxInterval time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: InitialBackoffInterval,
		Multiplier:      BackoffMultiplier,
	}
}

// Always はすべてのエラーをリトライ対象とします。
func Always(error) bool { return true }

// Option は Do の付随的な依存 (ロガー、タイマー) を設定します。
type Option func(*options)

type options struct {
	logger *zap.Logger
	timer  backoff.Timer
	notify func(attempt int, err error, wait time.Duration)
}

// WithLogger は試行ごとのログ出力先を設定します。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimer はバックオフの待機に使うタイマーを差し替えます (主にテスト用)。
func WithTimer(t backoff.Timer) Option {
	return func(o *options) {
		o.timer = t
	}
}

// WithNotify はリトライが決定されるたびに呼ばれるフックを設定します。
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// newBackOffPolicy は Config からジッターなしの指数バックオフを組み立てます。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOffContext {
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = BackoffMultiplier
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialInterval),
		backoff.WithMultiplier(multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)

	// WithMaxRetries は「初回以外の再試行回数」を数えるため 1 を引く
	retries := uint64(0)
	if cfg.MaxAttempts > 1 {
		retries = uint64(cfg.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// Do は指数バックオフを使用して操作をリトライします。
// 途中の失敗は Warn、最終試行の失敗は Error として記録し、最後のエラーをそのまま返します。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc, opts ...Option) error {
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("%s: 最大試行回数は1以上である必要があります (指定値: %d)", operationName, cfg.MaxAttempts)
	}
	if shouldRetryFn == nil {
		shouldRetryFn = Always
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	bo := newBackOffPolicy(ctx, cfg)

	attempt := 0
	var lastErr error

	// リトライ処理内で実行される実際の操作
	retryableOp := func() error {
		attempt++
		o.logger.Debug(fmt.Sprintf("[%d/%d attempts] %s", attempt, cfg.MaxAttempts, operationName),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.String("target", operationName),
		)

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetryFn(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		o.logger.Warn(
			fmt.Sprintf("[%d/%d attempts] %s: %v. Retrying in %.2fs...", attempt, cfg.MaxAttempts, operationName, err, wait.Seconds()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.String("target", operationName),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if o.notify != nil {
			o.notify(attempt, err, wait)
		}
	}

	err := backoff.RetryNotifyWithTimer(retryableOp, bo, notify, o.timer)
	if err == nil {
		return nil
	}

	// 待機中のキャンセル/タイムアウトは、最後の操作エラーと区別して返す
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && !errors.Is(lastErr, err) {
		o.logger.Error(
			fmt.Sprintf("[%d/%d attempts] %s: %v. Aborting 🛑.", attempt, cfg.MaxAttempts, operationName, err),
			zap.Int("attempt", attempt),
			zap.String("target", operationName),
			zap.Error(err),
		)
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, err)
	}

	if !shouldRetryFn(err) {
		o.logger.Error(
			fmt.Sprintf("[%d/%d attempts] %s: %v. Non-retryable error. Aborting 🛑.", attempt, cfg.MaxAttempts, operationName, err),
			zap.Int("attempt", attempt),
			zap.String("target", operationName),
			zap.Error(err),
		)
		return err
	}

	o.logger.Error(
		fmt.Sprintf("[%d/%d attempts] %s: %v. Max retries reached. Aborting 🛑.", attempt, cfg.MaxAttempts, operationName, err),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.String("target", operationName),
		zap.Error(err),
	)
	return err
}
