package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/microcourse/internal/model"
)

// pngHeader は最小限のPNGシグネチャとIHDRチャンク。
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// mp4Header はftypボックスを持つMP4の先頭。
var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")

func newTestStore(t *testing.T, maxVideo, maxImage int64) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), maxVideo, maxImage)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return s
}

func TestLocalStore_PutImage(t *testing.T) {
	s := newTestStore(t, 1<<20, 1<<20)

	locator, err := s.Put(context.Background(), KindThumbnail, "cover.PNG", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasPrefix(locator, "/uploads/thumbnails/") || !strings.HasSuffix(locator, ".png") {
		t.Errorf("locator = %q", locator)
	}

	data, err := os.ReadFile(filepath.Join(s.Root(), strings.TrimPrefix(locator, "/uploads/")))
	if err != nil {
		t.Fatalf("stored file not found: %v", err)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Error("stored content differs from upload")
	}
}

func TestLocalStore_PutVideo(t *testing.T) {
	s := newTestStore(t, 1<<20, 1<<20)
	body := append(append([]byte{}, mp4Header...), bytes.Repeat([]byte{0}, 5000)...)

	locator, err := s.Put(context.Background(), KindVideo, "lesson.mp4", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasPrefix(locator, "/uploads/videos/") {
		t.Errorf("locator = %q", locator)
	}
	info, err := os.Stat(filepath.Join(s.Root(), strings.TrimPrefix(locator, "/uploads/")))
	if err != nil || info.Size() != int64(len(body)) {
		t.Errorf("stored size mismatch: %v %v", info, err)
	}
}

// 拡張子ではなく内容でMIMEタイプを判定することを検証
func TestLocalStore_RejectsWrongContent(t *testing.T) {
	s := newTestStore(t, 1<<20, 1<<20)

	_, err := s.Put(context.Background(), KindVideo, "fake.mp4", bytes.NewReader(pngHeader))
	if !model.IsKind(err, model.KindValidation) {
		t.Errorf("Put(png as video) error = %v, want Validation", err)
	}
	_, err = s.Put(context.Background(), KindThumbnail, "evil.png", strings.NewReader("<html><script>alert(1)</script></html>"))
	if !model.IsKind(err, model.KindValidation) {
		t.Errorf("Put(html as image) error = %v, want Validation", err)
	}
	_, err = s.Put(context.Background(), KindThumbnail, "empty.png", bytes.NewReader(nil))
	if !model.IsKind(err, model.KindValidation) {
		t.Errorf("Put(empty) error = %v, want Validation", err)
	}
}

func TestLocalStore_RejectsOversize(t *testing.T) {
	s := newTestStore(t, 1<<20, 64)
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 100)...)

	_, err := s.Put(context.Background(), KindThumbnail, "big.png", bytes.NewReader(body))
	if !model.IsKind(err, model.KindValidation) {
		t.Errorf("Put() error = %v, want Validation", err)
	}

	entries, _ := os.ReadDir(filepath.Join(s.Root(), string(KindThumbnail)))
	if len(entries) != 0 {
		t.Errorf("oversize upload left %d files behind", len(entries))
	}
}

func TestLocalStore_Delete(t *testing.T) {
	s := newTestStore(t, 1<<20, 1<<20)
	ctx := context.Background()
	locator, _ := s.Put(ctx, KindThumbnail, "a.png", bytes.NewReader(pngHeader))

	if err := s.Delete(ctx, locator); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), strings.TrimPrefix(locator, "/uploads/"))); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}

	// 2回目・外部URL・パストラバーサルはいずれもエラーにならず何もしない
	for _, loc := range []string{locator, "https://cdn.example.com/a.png", "/uploads/thumbnails/../../etc/passwd"} {
		if err := s.Delete(ctx, loc); err != nil {
			t.Errorf("Delete(%q) error = %v", loc, err)
		}
	}
}

func TestIsLocal(t *testing.T) {
	if !IsLocal("/uploads/videos/a.mp4") {
		t.Error("expected local")
	}
	if IsLocal("https://example.com/uploads/videos/a.mp4") {
		t.Error("expected external")
	}
}
