package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var fileNamePattern = regexp.MustCompile(`^[0-9a-f]{16}\.(jpg|jpeg|png)$`)

func TestNewFileName(t *testing.T) {
	tests := []struct {
		original string
		wantExt  string
	}{
		{"me.jpg", ".jpg"},
		{"ME.PNG", ".png"},
		{"holiday.photo.jpeg", ".jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			name, err := NewFileName(tt.original)
			if err != nil {
				t.Fatalf("NewFileName: %v", err)
			}
			if !fileNamePattern.MatchString(name) {
				t.Errorf("name = %q, want 16 hex chars + ext", name)
			}
			if !strings.HasSuffix(name, tt.wantExt) {
				t.Errorf("name = %q, want suffix %q", name, tt.wantExt)
			}
		})
	}

	a, _ := NewFileName("a.png")
	b, _ := NewFileName("a.png")
	if a == b {
		t.Error("ファイル名が毎回ランダムになっていない")
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("a.JPG"); got != "image/jpeg" {
		t.Errorf("ContentType(a.JPG) = %q", got)
	}
	if got := ContentType("a.png"); got != "image/png" {
		t.Errorf("ContentType(a.png) = %q", got)
	}
	if got := ContentType("a.gif"); got != "application/octet-stream" {
		t.Errorf("ContentType(a.gif) = %q", got)
	}
}

func TestValidName(t *testing.T) {
	valid := []struct{ category, name string }{
		{CategoryAvatar, "0123456789abcdef.jpg"},
		{CategoryImageCover, "default_cover.jpg"},
	}
	for _, v := range valid {
		if err := validName(v.category, v.name); err != nil {
			t.Errorf("validName(%q, %q) = %v", v.category, v.name, err)
		}
	}

	invalid := []struct{ category, name string }{
		{"other", "a.jpg"},
		{CategoryAvatar, ""},
		{CategoryAvatar, "../secret"},
		{CategoryAvatar, "a/b.jpg"},
		{CategoryAvatar, `a\b.jpg`},
		{CategoryAvatar, ".hidden"},
	}
	for _, v := range invalid {
		if err := validName(v.category, v.name); err == nil {
			t.Errorf("validName(%q, %q) should fail", v.category, v.name)
		}
	}
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	name, err := store.Save(ctx, CategoryAvatar, "me.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !fileNamePattern.MatchString(name) {
		t.Errorf("name = %q", name)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, CategoryAvatar, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(onDisk) != "png-bytes" {
		t.Errorf("content = %q", onDisk)
	}

	rc, err := store.Open(ctx, CategoryAvatar, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "png-bytes" {
		t.Errorf("Open content = %q", got)
	}

	if u := store.URL(CategoryAvatar, name); u != "/avatar/"+name {
		t.Errorf("URL = %q", u)
	}
}

func TestLocalStore_OpenMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	for _, name := range []string{"nope.jpg", "../../etc/passwd"} {
		if _, err := store.Open(context.Background(), CategoryImageCover, name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) err = %v, want ErrNotFound", name, err)
		}
	}
}

// --- S3 ---

type mockS3 struct {
	putInput *s3.PutObjectInput
	putBody  []byte
	putErr   error
	getErr   error
	objects  map[string][]byte
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.putInput = in
	m.putBody, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	body, ok := m.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Store_Save(t *testing.T) {
	client := &mockS3{}
	store := newS3Store(client, "blog-uploads", "https://cdn.example.com/")

	name, err := store.Save(context.Background(), CategoryImageCover, "cover.JPG", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if *client.putInput.Bucket != "blog-uploads" {
		t.Errorf("Bucket = %q", *client.putInput.Bucket)
	}
	if *client.putInput.Key != "image_cover/"+name {
		t.Errorf("Key = %q", *client.putInput.Key)
	}
	if *client.putInput.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q", *client.putInput.ContentType)
	}
	if string(client.putBody) != "jpeg" {
		t.Errorf("Body = %q", client.putBody)
	}
	if u := store.URL(CategoryImageCover, name); u != "https://cdn.example.com/image_cover/"+name {
		t.Errorf("URL = %q", u)
	}
}

func TestS3Store_SaveFailure(t *testing.T) {
	store := newS3Store(&mockS3{putErr: errors.New("access denied")}, "b", "")

	if _, err := store.Save(context.Background(), CategoryAvatar, "a.png", strings.NewReader("x")); err == nil {
		t.Error("アップロード失敗がエラーにならない")
	}
}

func TestS3Store_Open(t *testing.T) {
	client := &mockS3{objects: map[string][]byte{"avatar/abc.png": []byte("png")}}
	store := newS3Store(client, "b", "")

	rc, err := store.Open(context.Background(), CategoryAvatar, "abc.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "png" {
		t.Errorf("content = %q", got)
	}

	if _, err := store.Open(context.Background(), CategoryAvatar, "missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if u := store.URL(CategoryAvatar, "abc.png"); u != "/avatar/abc.png" {
		t.Errorf("公開URL未設定時はアプリ経由のパス: got %q", u)
	}
}

func TestNewS3Store_BuildsClient(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:    "blog-uploads",
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if store.bucket != "blog-uploads" {
		t.Errorf("bucket = %q", store.bucket)
	}
}
