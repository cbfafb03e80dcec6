package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shouni/go-web-fetch/pkg/cache"
	"github.com/shouni/go-web-fetch/pkg/render"
	"github.com/shouni/go-web-fetch/pkg/www"
)

// 設定キー (フラグ名、設定ファイルのキー、WWW_ 接頭辞付き環境変数に共通)
const (
	KeyTimeout     = "timeout"
	KeyMaxRetries  = "max-retries"
	KeyRenderWait  = "render-wait"
	KeyInsecure    = "insecure"
	KeyCacheDir    = "cache-dir"
	KeyBrowser     = "browser"
	KeyBrowserPath = "browser-path"
	KeyNoSandbox   = "no-sandbox"
	KeyLogLevel    = "log-level"
	KeyMetricsFile = "metrics-file"

	EnvPrefix = "WWW"
)

// Config はCLIから Fetcher を組み立てるための設定です。
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	RenderWait  time.Duration
	Insecure    bool
	CacheDir    string
	Browser     string
	BrowserPath string
	NoSandbox   bool
	LogLevel    string
	Verbose     bool
	// MetricsFile が空でなければ、終了時にメトリクスを textfile 形式で書き出します。
	MetricsFile string
}

// NewViper は既定値と WWW_* 環境変数を設定した viper インスタンスを返します。
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyTimeout, www.DefaultTimeout)
	v.SetDefault(KeyMaxRetries, www.DefaultMaxRetries)
	v.SetDefault(KeyRenderWait, www.DefaultRenderWait)
	v.SetDefault(KeyInsecure, false)
	v.SetDefault(KeyCacheDir, cache.DefaultDir())
	v.SetDefault(KeyBrowser, render.DefaultEngine)
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// LoadConfig は viper から設定を読み出します。configFile が空でなければ先に読み込みます。
// 優先順位はフラグ、環境変数、設定ファイル、既定値の順です。
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗しました (%s): %w", configFile, err)
		}
	}

	cfg := Config{
		Timeout:     v.GetDuration(KeyTimeout),
		MaxRetries:  v.GetInt(KeyMaxRetries),
		RenderWait:  v.GetDuration(KeyRenderWait),
		Insecure:    v.GetBool(KeyInsecure),
		CacheDir:    v.GetString(KeyCacheDir),
		Browser:     v.GetString(KeyBrowser),
		BrowserPath: v.GetString(KeyBrowserPath),
		NoSandbox:   v.GetBool(KeyNoSandbox),
		LogLevel:    v.GetString(KeyLogLevel),
		MetricsFile: v.GetString(KeyMetricsFile),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の範囲を検査します。
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s は正の値である必要があります (指定値: %s)", KeyTimeout, c.Timeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("%s は1以上である必要があります (指定値: %d)", KeyMaxRetries, c.MaxRetries))
	}
	if c.RenderWait < 0 {
		errs = append(errs, fmt.Errorf("%s は0以上である必要があります (指定値: %s)", KeyRenderWait, c.RenderWait))
	}
	if _, err := render.New(c.Browser); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
