package www

import (
	"github.com/shouni/go-web-fetch/pkg/cache"
	"github.com/shouni/go-web-fetch/pkg/httpclient"
	"github.com/shouni/go-web-fetch/pkg/render"
)

// 呼び出し元が errors.As で判別できるエラーの種類です。
type (
	// NetworkError は接続、DNS、タイムアウト、ボディ読み込みの失敗です。リトライ対象です。
	NetworkError = httpclient.NetworkError
	// HTTPStatusError は2xx以外の応答です。リトライ対象です。
	HTTPStatusError = httpclient.HTTPStatusError
	// RenderError はブラウザ自動化の失敗です。リトライされません。
	RenderError = render.RenderError
	// FilesystemError はキャッシュやダウンロード先のファイル操作の失敗です。リトライされません。
	FilesystemError = cache.FilesystemError
)
