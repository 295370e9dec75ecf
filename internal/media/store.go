// Package media はアップロードされた動画・画像の保存先を提供する。
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/hitoshi/microcourse/internal/model"
)

// sniffLen はMIME判定に使う先頭バイト数。
const sniffLen = 3072

// URLPrefix は保存したファイルを配信するパスの接頭辞。
const URLPrefix = "/uploads"

// Kind はアップロード対象の種別。
type Kind string

const (
	KindVideo     Kind = "videos"
	KindThumbnail Kind = "thumbnails"
)

// mimePrefix は種別ごとに受け付けるMIMEタイプの接頭辞。
func (k Kind) mimePrefix() string {
	if k == KindVideo {
		return "video/"
	}
	return "image/"
}

// Store はストリームを受け取り、取得可能なロケーターを返す。
type Store interface {
	Put(ctx context.Context, kind Kind, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, locator string) error
}

// LocalStore はローカルファイルシステムに保存するStore。
type LocalStore struct {
	root     string
	maxSizes map[Kind]int64
}

// NewLocalStore はLocalStoreを生成する。種別ごとのディレクトリを作成する。
func NewLocalStore(root string, maxVideoSize, maxImageSize int64) (*LocalStore, error) {
	for _, k := range []Kind{KindVideo, KindThumbnail} {
		if err := os.MkdirAll(filepath.Join(root, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("アップロードディレクトリの作成に失敗しました: %w", err)
		}
	}
	return &LocalStore{
		root: root,
		maxSizes: map[Kind]int64{
			KindVideo:     maxVideoSize,
			KindThumbnail: maxImageSize,
		},
	}, nil
}

// Root は保存先のルートディレクトリを返す。
func (s *LocalStore) Root() string {
	return s.root
}

// Put は内容からMIMEタイプを判定して保存し、/uploads/<kind>/<uuid><ext> を返す。
// 種別に合わないファイルとサイズ超過はValidationエラーを返す。
func (s *LocalStore) Put(ctx context.Context, kind Kind, filename string, r io.Reader) (string, error) {
	maxSize, ok := s.maxSizes[kind]
	if !ok {
		return "", fmt.Errorf("未知のアップロード種別です: %s", kind)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("アップロードの読み込みに失敗しました: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", model.NewInvalidMediaError("ファイルが空です")
	}

	mtype := mimetype.Detect(head)
	if !strings.HasPrefix(mtype.String(), kind.mimePrefix()) {
		return "", model.NewInvalidMediaError(fmt.Sprintf("%s は受け付けられません", mtype.String()))
	}

	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	name := uuid.New().String() + ext
	dst := filepath.Join(s.root, string(kind), name)

	f, err := os.CreateTemp(filepath.Join(s.root, string(kind)), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, maxSize+1))
	closeErr := f.Close()
	if err != nil {
		return "", fmt.Errorf("アップロードの保存に失敗しました: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("アップロードの保存に失敗しました: %w", closeErr)
	}
	if written > maxSize {
		return "", model.NewInvalidMediaError(fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています", maxSize))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("アップロードの保存に失敗しました: %w", err)
	}

	slog.Info("メディア保存完了", "kind", kind, "mimeType", mtype.String(), "size", written)
	return path.Join(URLPrefix, string(kind), name), nil
}

// Delete はロケーターが指すファイルを削除する。存在しない場合は何もしない。
// このStoreが発行したロケーター以外は無視する。
func (s *LocalStore) Delete(_ context.Context, locator string) error {
	rel, ok := strings.CutPrefix(locator, URLPrefix+"/")
	if !ok {
		return nil
	}
	kind, name, ok := strings.Cut(rel, "/")
	if !ok || (Kind(kind) != KindVideo && Kind(kind) != KindThumbnail) || name != filepath.Base(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.root, kind, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("メディアの削除に失敗しました: %w", err)
	}
	return nil
}

// IsLocal はロケーターがこのStoreの配信パスを指しているかを返す。
func IsLocal(locator string) bool {
	return strings.HasPrefix(locator, URLPrefix+"/")
}

// compile-time interface check
var _ Store = (*LocalStore)(nil)
