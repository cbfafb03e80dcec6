package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient は Doer インターフェースを満たすモックです。
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	err := args.Error(1)
	if args.Get(0) != nil {
		return args.Get(0).(*http.Response), err
	}
	return nil, err
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNew(t *testing.T) {
	t.Run("transports differ only in TLS verification", func(t *testing.T) {
		client := New()
		require.NotNil(t, client.secure)
		require.NotNil(t, client.insecure)
		assert.True(t, client.insecure.TLSClientConfig.InsecureSkipVerify)
		if client.secure.TLSClientConfig != nil {
			assert.False(t, client.secure.TLSClientConfig.InsecureSkipVerify)
		}
	})

	t.Run("transport follows TLS setting", func(t *testing.T) {
		client := New()
		doer := client.doerFor(Request{Timeout: 3 * time.Second}).(*http.Client)
		assert.Same(t, client.secure, doer.Transport)
		assert.Zero(t, doer.Timeout, "タイムアウトは読み込み単位で管理する")

		doer = client.doerFor(Request{InsecureSkipVerify: true}).(*http.Client)
		assert.Same(t, client.insecure, doer.Transport)
	})

	t.Run("default timeout", func(t *testing.T) {
		assert.Equal(t, DefaultHTTPTimeout, timeoutOf(Request{}))
		assert.Equal(t, 3*time.Second, timeoutOf(Request{Timeout: 3 * time.Second}))
	})

	t.Run("with HTTP client option", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		client := New(WithHTTPClient(mockClient))
		assert.Equal(t, mockClient, client.doerFor(Request{}))
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("custom headers are sent", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
			return req.Header.Get("User-Agent") == "test-agent" && req.Header.Get("Accept") == "text/html"
		})).Return(response(http.StatusOK, "ok"), nil).Once()

		client := New(WithHTTPClient(mockClient))
		resp, err := client.Get(ctx, Request{
			URL:     "https://example.com",
			Headers: map[string]string{"User-Agent": "test-agent", "Accept": "text/html"},
		})
		require.NoError(t, err)
		resp.Body.Close()
		mockClient.AssertExpectations(t)
	})

	t.Run("default user agent", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
			return req.Header.Get("User-Agent") == UserAgent
		})).Return(response(http.StatusNoContent, ""), nil).Once()

		client := New(WithHTTPClient(mockClient))
		resp, err := client.Get(ctx, Request{URL: "https://example.com"})
		require.NoError(t, err)
		resp.Body.Close()
		mockClient.AssertExpectations(t)
	})

	t.Run("non-2xx is an HTTPStatusError", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(response(http.StatusServiceUnavailable, "try later"), nil).Once()

		client := New(WithHTTPClient(mockClient))
		resp, err := client.Get(ctx, Request{URL: "https://example.com"})

		assert.Nil(t, resp)
		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, []byte("try later"), statusErr.Body)

		code, ok := StatusCode(err)
		assert.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("transport failure is a NetworkError", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(nil, errors.New("dial tcp: connection refused")).Once()

		client := New(WithHTTPClient(mockClient))
		_, err := client.Get(ctx, Request{URL: "https://example.com"})

		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
		_, ok := StatusCode(err)
		assert.False(t, ok)
	})

	t.Run("invalid URL", func(t *testing.T) {
		client := New(WithHTTPClient(new(MockHTTPClient)))
		_, err := client.Get(ctx, Request{URL: "://bad"})
		require.Error(t, err)
	})
}

func TestGet_TLSVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer server.Close()

	client := New()
	ctx := context.Background()

	t.Run("self-signed certificate is rejected by default", func(t *testing.T) {
		_, err := client.FetchBytes(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
	})

	t.Run("verification disabled for this request only", func(t *testing.T) {
		body, err := client.FetchBytes(ctx, Request{URL: server.URL, Timeout: 5 * time.Second, InsecureSkipVerify: true})
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), body)

		_, err = client.FetchBytes(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
		assert.Error(t, err, "other requests still verify certificates")
	})
}

func TestHTTPStatusError_Error(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected string
	}{
		{"non-empty body", []byte("error body"), "HTTPステータスコードエラー: 400 Bad Request (https://example.com), ボディ: error body"},
		{"empty body", nil, "HTTPステータスコードエラー: 400 Bad Request (https://example.com), ボディなし"},
		{"truncated body", []byte(strings.Repeat("a", 1025)), "HTTPステータスコードエラー: 400 Bad Request (https://example.com), ボディ: " + strings.Repeat("a", 1024) + "..."},
		// 「あ」は3バイト。1024バイト目は342文字目の途中にあたる
		{"truncated on rune boundary", []byte(strings.Repeat("あ", 400)), "HTTPステータスコードエラー: 400 Bad Request (https://example.com), ボディ: " + strings.Repeat("あ", 341) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &HTTPStatusError{URL: "https://example.com", StatusCode: http.StatusBadRequest, Body: tt.body}
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		n        int
		expected string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		{"multibyte boundary", "日本語", 6, "日本..."},
		{"inside rune", "日本語", 4, "日..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.expected, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestGet_ReadDeadline(t *testing.T) {
	const timeout = 150 * time.Millisecond

	t.Run("slow transfer with steady chunks is not cut off", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flusher := w.(http.Flusher)
			for i := 0; i < 8; i++ {
				_, _ = w.Write(bytes.Repeat([]byte("x"), ChunkSize))
				flusher.Flush()
				time.Sleep(50 * time.Millisecond)
			}
		}))
		defer server.Close()

		start := time.Now()
		body, err := New().FetchBytes(context.Background(), Request{URL: server.URL, Timeout: timeout})
		require.NoError(t, err)
		assert.Len(t, body, 8*ChunkSize)
		assert.Greater(t, time.Since(start), timeout, "転送全体は Timeout を超えている")
	})

	t.Run("stalled body fails with timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		resp, err := New().Get(context.Background(), Request{URL: server.URL, Timeout: timeout})
		require.NoError(t, err)
		defer resp.Body.Close()

		var sink bytes.Buffer
		_, err = CopyChunks(&sink, resp.Body, server.URL)
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.NotErrorIs(t, err, context.Canceled, "呼び出し元のキャンセルとは区別される")
		assert.Equal(t, "partial", sink.String())
	})

	t.Run("stalled headers fail with timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		_, err := New().Get(context.Background(), Request{URL: server.URL, Timeout: timeout})
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

// chunkRecorder は Write ごとの長さを記録します。
type chunkRecorder struct {
	bytes.Buffer
	sizes []int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.sizes = append(c.sizes, len(p))
	return c.Buffer.Write(p)
}

func TestCopyChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 250) // 2500 bytes

	w := &chunkRecorder{}
	n, err := CopyChunks(w, bytes.NewReader(payload), "https://example.com/file.bin")

	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, w.Bytes())
	for _, size := range w.sizes {
		assert.LessOrEqual(t, size, ChunkSize)
	}
	assert.Equal(t, []int{1024, 1024, 452}, w.sizes)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestCopyChunks_ReadError(t *testing.T) {
	_, err := CopyChunks(io.Discard, failingReader{}, "https://example.com/file.bin")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}
