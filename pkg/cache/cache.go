package cache

import (
	"crypto/md5" //nolint:gosec // キャッシュファイル名の導出にのみ使用
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	// DirName は一時ディレクトリ直下に作られるキャッシュディレクトリ名です。
	DirName = "www"
	// FilePrefix はキャッシュファイル名の接頭辞です。
	FilePrefix = "www"

	dirPerm  = 0o755
	filePerm = 0o644
)

// DefaultDir は {システム一時ディレクトリ}/www を返します。
func DefaultDir() string {
	return filepath.Join(os.TempDir(), DirName)
}

// Key はURLから決定的に導出されるキャッシュキーです。
type Key struct {
	Hash string // URL文字列のMD5 (16進)
	Ext  string // 小文字化した拡張子 (先頭のドットなし、無い場合は空文字)
}

// KeyOf はURLからキャッシュキーを導出します。
func KeyOf(url string) Key {
	sum := md5.Sum([]byte(url)) //nolint:gosec
	return Key{
		Hash: hex.EncodeToString(sum[:]),
		Ext:  Ext(url),
	}
}

// FileName は www.{Hash}.{Ext} 形式のファイル名を返します。
// 拡張子が空の場合も末尾のドットは残ります。
func (k Key) FileName() string {
	return fmt.Sprintf("%s.%s.%s", FilePrefix, k.Hash, k.Ext)
}

// Ext はURL文字列の最後のパス要素から拡張子を取り出します。
func Ext(url string) string {
	base := url
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	// ".bashrc" のような先頭ドットは拡張子として扱わない
	base = strings.TrimLeft(base, ".")
	return strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
}

// FilesystemError はキャッシュやダウンロード先のファイル操作の失敗を表します。
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("ファイル操作に失敗しました (%s %s): %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// Store はキャッシュエントリをディスク上のファイルとして保持します。
// ファイルの存在がキャッシュヒットのすべてであり、有効期限や検証はありません。
type Store struct {
	fs  afero.Fs
	dir string
}

// Option は Store の設定を行うための関数型です。
type Option func(*Store)

// WithFs はファイルシステムを差し替えます。
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithDir はキャッシュディレクトリを差し替えます。
func WithDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// New は Store を初期化します。既定では OS のファイルシステムと DefaultDir を使用します。
func New(opts ...Option) *Store {
	s := &Store{
		fs:  afero.NewOsFs(),
		dir: DefaultDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir はキャッシュディレクトリを返します。
func (s *Store) Dir() string { return s.dir }

// Path はURLに対応するキャッシュファイルのパスを返します。
func (s *Store) Path(url string) string {
	return filepath.Join(s.dir, KeyOf(url).FileName())
}

// Get はキャッシュファイルが存在すればその内容を返します。
func (s *Store) Get(url string) ([]byte, bool, error) {
	p := s.Path(url)
	exists, err := afero.Exists(s.fs, p)
	if err != nil {
		return nil, false, &FilesystemError{Op: "stat", Path: p, Err: err}
	}
	if !exists {
		return nil, false, nil
	}

	content, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, false, &FilesystemError{Op: "read", Path: p, Err: err}
	}
	return content, true, nil
}

// Put は content をそのままキャッシュファイルに書き込み、そのパスを返します。
// 同じキーへの同時書き込みはロックせず、最後の書き込みが残ります。
func (s *Store) Put(url string, content []byte) (string, error) {
	if err := s.fs.MkdirAll(s.dir, dirPerm); err != nil {
		return "", &FilesystemError{Op: "mkdir", Path: s.dir, Err: err}
	}

	p := s.Path(url)
	if err := afero.WriteFile(s.fs, p, content, filePerm); err != nil {
		return "", &FilesystemError{Op: "write", Path: p, Err: err}
	}
	return p, nil
}
