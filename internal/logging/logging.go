package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component はすべてのログに付与されるコンポーネント名です。
const Component = "WWW"

// Options はロガーの構築設定です。
type Options struct {
	// Level は debug, info, warn, error のいずれかです。空の場合は info です。
	Level string
	// Verbose は Level に関わらず debug 出力とし、人が読みやすいコンソール形式にします。
	Verbose bool
	// OutputPaths が空の場合は標準エラー出力に書き出します。
	OutputPaths []string
}

// ParseLevel はログレベル名を zapcore.Level に変換します。
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("不正なログレベルです: %q: %w", level, err)
	}
	return l, nil
}

// New は component=WWW を付与したロガーを構築します。
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg = zap.NewDevelopmentConfig()
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの初期化に失敗しました: %w", err)
	}
	return logger.With(zap.String("component", Component)), nil
}
