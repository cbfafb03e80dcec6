package www

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/shouni/go-web-fetch/pkg/httpclient"
	"github.com/shouni/go-web-fetch/pkg/parser"
	"github.com/shouni/go-web-fetch/pkg/render"
	"github.com/shouni/go-web-fetch/pkg/retry"
)

const (
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = retry.DefaultMaxAttempts // 初回を含む試行回数
	DefaultRenderWait = 1 * time.Second
)

// DefaultHeaders は Headers が指定されなかった場合に送信されるヘッダーです。
func DefaultHeaders() map[string]string {
	return map[string]string{"User-Agent": httpclient.UserAgent}
}

// CachePolicy は静的取得時のキャッシュの扱いです。
type CachePolicy int

const (
	// CacheUseIfPresent はキャッシュファイルがあればそれを返し、なければ取得して保存します。
	CacheUseIfPresent CachePolicy = iota
	// CacheBypass はキャッシュを読みも書きもしません。
	CacheBypass
)

func (p CachePolicy) String() string {
	switch p {
	case CacheUseIfPresent:
		return "use-if-present"
	case CacheBypass:
		return "bypass"
	default:
		return fmt.Sprintf("CachePolicy(%d)", int(p))
	}
}

// FetchMode は Read がどの経路で内容を取得するかを表します。
type FetchMode int

const (
	// ModeStatic はHTTP GET (とキャッシュ) で取得します。
	ModeStatic FetchMode = iota
	// ModeRendered はヘッドレスブラウザで描画したHTMLを取得します。
	ModeRendered
)

func (m FetchMode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeRendered:
		return "rendered"
	default:
		return fmt.Sprintf("FetchMode(%d)", int(m))
	}
}

// ErrInvalidRequest はリクエストの設定値が不正な場合に返されます。
var ErrInvalidRequest = errors.New("無効なリクエストです")

// Request は1回の取得操作の設定です。NewRequest で作成し、以降は変更しません。
type Request struct {
	URL        string
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int // 初回を含む試行回数
	RenderWait time.Duration
	// InsecureSkipVerify はこのリクエストに限りTLS証明書の検証を無効化します。
	InsecureSkipVerify bool
	CachePolicy        CachePolicy
	FetchMode          FetchMode
	ParserMode         parser.Mode
}

// RequestOption は Request の設定を行うための関数型です。
type RequestOption func(*Request)

// WithHeaders は送信するヘッダーを設定します。空の場合は DefaultHeaders が使われます。
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		r.Headers = maps.Clone(headers)
	}
}

// WithTimeout は1回のHTTP試行 (またはブラウザ描画) のタイムアウトを設定します。
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = d
	}
}

// WithMaxRetries は初回を含む最大試行回数を設定します。
func WithMaxRetries(n int) RequestOption {
	return func(r *Request) {
		r.MaxRetries = n
	}
}

// WithRenderWait はブラウザ描画時の待機時間を設定します。
func WithRenderWait(d time.Duration) RequestOption {
	return func(r *Request) {
		r.RenderWait = d
	}
}

// WithInsecureSkipVerify はこのリクエストのTLS証明書検証を無効化します。
func WithInsecureSkipVerify(skip bool) RequestOption {
	return func(r *Request) {
		r.InsecureSkipVerify = skip
	}
}

// WithCachePolicy はキャッシュの扱いを設定します。
func WithCachePolicy(p CachePolicy) RequestOption {
	return func(r *Request) {
		r.CachePolicy = p
	}
}

// WithFetchMode は Read の取得経路を設定します。
func WithFetchMode(m FetchMode) RequestOption {
	return func(r *Request) {
		r.FetchMode = m
	}
}

// WithParserMode は ParseDocument のHTML解釈方法を設定します。
func WithParserMode(m parser.Mode) RequestOption {
	return func(r *Request) {
		r.ParserMode = m
	}
}

// NewRequest はURLとオプションから Request を作成します。
// ヘッダー、タイムアウト、試行回数、待機時間はゼロ値の場合に既定値が補われます。
func NewRequest(url string, opts ...RequestOption) Request {
	r := Request{URL: url}
	for _, opt := range opts {
		opt(&r)
	}
	if len(r.Headers) == 0 {
		r.Headers = DefaultHeaders()
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultTimeout
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.RenderWait == 0 {
		r.RenderWait = DefaultRenderWait
	}
	return r
}

func (r Request) String() string {
	return "🌐" + r.URL
}

// Validate は設定値の不変条件を検査します。
func (r Request) Validate() error {
	var problems []string
	if strings.TrimSpace(r.URL) == "" {
		problems = append(problems, "URLが空です")
	}
	if r.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("最大試行回数は1以上である必要があります (指定値: %d)", r.MaxRetries))
	}
	if r.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("タイムアウトは正の値である必要があります (指定値: %s)", r.Timeout))
	}
	if r.RenderWait < 0 {
		problems = append(problems, fmt.Sprintf("描画待機時間は0以上である必要があります (指定値: %s)", r.RenderWait))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidRequest, r, strings.Join(problems, ", "))
	}
	return nil
}

func (r Request) httpRequest() httpclient.Request {
	return httpclient.Request{
		URL:                r.URL,
		Headers:            r.Headers,
		Timeout:            r.Timeout,
		InsecureSkipVerify: r.InsecureSkipVerify,
	}
}

func (r Request) renderRequest() render.Request {
	return render.Request{
		URL:                r.URL,
		Headers:            r.Headers,
		Wait:               r.RenderWait,
		Timeout:            r.Timeout,
		InsecureSkipVerify: r.InsecureSkipVerify,
	}
}

func (r Request) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = r.MaxRetries
	return cfg
}
