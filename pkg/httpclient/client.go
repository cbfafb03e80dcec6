package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout = 120 * time.Second
	MaxBodySize        = int64(10 * 1024 * 1024) // 10MB: エラーレスポンスボディの最大読み込みサイズ
	maxErrorBodyLength = 1024

	// ChunkSize はストリーミング書き込み時の1回あたりの読み込みサイズです。
	ChunkSize = 1024

	// サイトからのブロックを避けるためのUser-Agent
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "
)

// ErrTimeout はヘッダー受信、またはボディの1回の読み込みが Timeout を超えたことを表します。
var ErrTimeout = errors.New("タイムアウトしました")

// Doer は、標準の *http.Client.Do()と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NetworkError は接続失敗、DNS解決失敗、タイムアウト、ボディ読み込み失敗を表します。
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError は2xx以外のステータスコードを表します。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("HTTPステータスコードエラー: %d %s (%s), ボディなし", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	}
	body := truncate(strings.TrimSpace(string(e.Body)), maxErrorBodyLength)
	return fmt.Sprintf("HTTPステータスコードエラー: %d %s (%s), ボディ: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL, body)
}

// Request は1回のGETに必要な設定です。
type Request struct {
	URL     string
	Headers map[string]string
	// Timeout はヘッダー受信までと、ボディの各読み込みにそれぞれ適用されます。
	// ボディ全体の転送時間には上限を設けません。0 の場合は DefaultHTTPTimeout です。
	Timeout time.Duration
	// InsecureSkipVerify はこのリクエストに限りTLS証明書の検証を無効化します。
	InsecureSkipVerify bool
}

// Client は1回分のHTTP GETを実行します。リトライは呼び出し側 (www.Fetcher) の責務です。
type Client struct {
	// doer が設定されている場合、タイムアウトとTLS設定は doer 側に委ねられます。
	doer      Doer
	secure    *http.Transport
	insecure  *http.Transport
	userAgent string
}

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.doer = doer
	}
}

// New は新しいClientを初期化します。
func New(options ...ClientOption) *Client {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		base = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	secure := base.Clone()
	insecure := base.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // リクエスト単位で明示的に指定された場合のみ使用

	c := &Client{
		secure:    secure,
		insecure:  insecure,
		userAgent: UserAgent,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// doerFor はリクエスト設定に応じたDoerを返します。
// タイムアウトは Get が読み込み単位で管理するため、http.Client.Timeout は設定しません。
func (c *Client) doerFor(req Request) Doer {
	if c.doer != nil {
		return c.doer
	}
	transport := c.secure
	if req.InsecureSkipVerify {
		transport = c.insecure
	}
	return &http.Client{Transport: transport}
}

func timeoutOf(req Request) time.Duration {
	if req.Timeout <= 0 {
		return DefaultHTTPTimeout
	}
	return req.Timeout
}

// Get は1回のGETを実行し、2xxであればレスポンスを返します。
// 呼び出し元は resp.Body.Close() を実行する必要があります。
func (c *Client) Get(ctx context.Context, req Request) (*http.Response, error) {
	ctx, deadline := newReadDeadline(ctx, timeoutOf(req))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		deadline.release()
		return nil, fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" && c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	// 1. ヘッダー受信までを Timeout で打ち切る
	resp, err := c.doerFor(req).Do(httpReq)
	if err != nil {
		err = deadline.wrap(err)
		deadline.release()
		return nil, &NetworkError{URL: req.URL, Err: err}
	}
	deadline.pause()

	// 2. 以降はボディの読み込みごとに Timeout を適用する
	resp.Body = &deadlineBody{ReadCloser: resp.Body, deadline: deadline}

	if err := checkResponse(req.URL, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// FetchBytes は1回のGETを実行し、レスポンスボディ全体を返します。
func (c *Client) FetchBytes(ctx context.Context, req Request) ([]byte, error) {
	resp, err := c.Get(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: req.URL, Err: fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)}
	}
	return body, nil
}

// checkResponse はステータスコードが2xxでなければ HTTPStatusError を返します。
// ボディは読み込みますが、閉じる責務は持ちません。
func checkResponse(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	return &HTTPStatusError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

// CopyChunks は r を ChunkSize バイトずつ w に書き込み、書き込んだバイト数を返します。
// 読み込みエラーは NetworkError、書き込みエラーはそのまま返します。
func CopyChunks(w io.Writer, r io.Reader, url string) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, writeErr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, &NetworkError{URL: url, Err: readErr}
		}
	}
}

// readDeadline は1回の待機 (ヘッダー受信、またはボディの1回の Read) ごとに timeout を課します。
type readDeadline struct {
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

func newReadDeadline(ctx context.Context, timeout time.Duration) (context.Context, *readDeadline) {
	ctx, cancel := context.WithCancel(ctx)
	d := &readDeadline{timeout: timeout, cancel: cancel}
	d.timer = time.AfterFunc(timeout, func() {
		d.expired.Store(true)
		cancel()
	})
	return ctx, d
}

func (d *readDeadline) resume() { d.timer.Reset(d.timeout) }

func (d *readDeadline) pause() { d.timer.Stop() }

func (d *readDeadline) release() {
	d.timer.Stop()
	d.cancel()
}

// wrap はタイマーによる打ち切りを、呼び出し元のキャンセルと区別できるエラーに置き換えます。
func (d *readDeadline) wrap(err error) error {
	if d.expired.Load() {
		return fmt.Errorf("%w (%s): %v", ErrTimeout, d.timeout, err)
	}
	return err
}

type deadlineBody struct {
	io.ReadCloser
	deadline *readDeadline
}

func (b *deadlineBody) Read(p []byte) (int, error) {
	b.deadline.resume()
	n, err := b.ReadCloser.Read(p)
	b.deadline.pause()
	if err != nil && !errors.Is(err, io.EOF) {
		err = b.deadline.wrap(err)
	}
	return n, err
}

func (b *deadlineBody) Close() error {
	b.deadline.release()
	return b.ReadCloser.Close()
}

// truncate は s を最大 n バイトに切り詰めます。マルチバイト文字の途中では切りません。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// IsNetworkError は与えられたエラーが NetworkError であるかを判断します。
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusCode は err が HTTPStatusError であればそのステータスコードを返します。
func StatusCode(err error) (int, bool) {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}
