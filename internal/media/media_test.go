package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDataURIRoundTrip(t *testing.T) {
	img, err := NewImage(pngBytes(t, 4, 4), "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	parsed, err := ParseDataURI(img.DataURI())
	require.NoError(t, err)
	assert.Equal(t, img.Data, parsed.Data)
	assert.Equal(t, "image/png", parsed.MIMEType)
}

func TestParseDataURIRejectsGarbage(t *testing.T) {
	_, err := ParseDataURI("https://example.com/a.png")
	assert.Error(t, err)
	_, err = ParseDataURI("data:image/png,plain")
	assert.Error(t, err)
}

func TestNewImageRejectsEmpty(t *testing.T) {
	_, err := NewImage(nil, "image/png")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDetectMIME(t *testing.T) {
	data := pngBytes(t, 2, 2)
	assert.Equal(t, "image/webp", DetectMIME(data, "image/webp"))
	assert.Equal(t, "image/jpeg", DetectMIME(data, "image/jpeg; charset=binary"))
	assert.Equal(t, "image/png", DetectMIME(data, "application/octet-stream"))
	assert.Equal(t, "image/jpeg", DetectMIME([]byte("plain text"), ""))
}

func TestDownscaleShrinksLongestSide(t *testing.T) {
	img := Image{Data: pngBytes(t, 2000, 1000), MIMEType: "image/png"}

	out, err := Downscale(img, MaxUploadSide)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, MaxUploadSide, cfg.Width)
	assert.Equal(t, 512, cfg.Height)
}

func TestDownscaleKeepsSmallImages(t *testing.T) {
	img := Image{Data: pngBytes(t, 100, 50), MIMEType: "image/png"}

	out, err := Downscale(img, MaxUploadSide)
	require.NoError(t, err)
	assert.Equal(t, img.Data, out.Data)
}

type fakeUploader struct {
	result UploadResult
	err    error
	got    []byte
}

func (f *fakeUploader) Upload(_ context.Context, input UploadInput) (UploadResult, error) {
	f.got, _ = io.ReadAll(input.Body)
	return f.result, f.err
}

func TestPublisherPrefersUploadedURL(t *testing.T) {
	up := &fakeUploader{result: UploadResult{Key: "k", URL: "https://cdn.example/k.png"}}
	img := Image{Data: []byte{1, 2, 3}, MIMEType: "image/png"}

	url := NewPublisher(up, zap.NewNop()).Publish(context.Background(), "Soup", img)

	assert.Equal(t, "https://cdn.example/k.png", url)
	assert.Equal(t, img.Data, up.got)
}

func TestPublisherFallsBackToDataURI(t *testing.T) {
	img := Image{Data: []byte{1, 2, 3}, MIMEType: "image/png"}

	for name, up := range map[string]Uploader{
		"disabled": Disabled(),
		"failing":  &fakeUploader{err: errors.New("bucket gone")},
		"no url":   &fakeUploader{result: UploadResult{Key: "only-key"}},
	} {
		t.Run(name, func(t *testing.T) {
			url := NewPublisher(up, nil).Publish(context.Background(), "Soup", img)
			assert.Equal(t, img.DataURI(), url)
		})
	}
}

func TestLocalUploaderWritesFile(t *testing.T) {
	dir := t.TempDir()
	up, err := NewLocalUploader(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	res, err := up.Upload(context.Background(), UploadInput{Filename: "recipe.png", Body: strings.NewReader("img")})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(res.Key, ".png"))
	assert.Equal(t, "http://localhost:8080/media/"+res.Key, res.URL)
	data, err := os.ReadFile(filepath.Join(dir, res.Key))
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

type fakePutter struct {
	input *s3.PutObjectInput
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploaderBuildsPrefixedKeyAndURL(t *testing.T) {
	putter := &fakePutter{}
	up := &s3Uploader{client: putter, bucket: "plates", region: "eu-north-1", prefix: "recipes"}

	res, err := up.Upload(context.Background(), UploadInput{
		Filename:    "recipe.PNG",
		ContentType: "image/png",
		Body:        strings.NewReader("img"),
		Size:        3,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Key, "recipes/"))
	assert.True(t, strings.HasSuffix(res.Key, ".png"))
	assert.Equal(t, "https://plates.s3.eu-north-1.amazonaws.com/"+res.Key, res.URL)
	assert.Equal(t, "image/png", *putter.input.ContentType)
	assert.Equal(t, int64(3), *putter.input.ContentLength)
}

func TestNewS3UploaderDisabledWithoutBucket(t *testing.T) {
	up, err := NewS3Uploader(context.Background(), Config{})
	require.NoError(t, err)

	_, err = up.Upload(context.Background(), UploadInput{Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUploaderDisabled)
}

func TestFetcherDownloadsImage(t *testing.T) {
	data := pngBytes(t, 3, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(0)
	f.allowed = func(netip.AddrPort) bool { return true }

	img, err := f.Fetch(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)
}

func TestFetcherRefusesPrivateHosts(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 2, 2))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/fridge.png")
	require.ErrorIs(t, err, ErrBlockedHost)
	assert.Zero(t, hits)

	_, err = f.Fetch(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestFetcherRefusesRedirectToPrivateHost(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("internal host was reached")
	}))
	defer internal.Close()
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/latest/meta-data", http.StatusFound)
	}))
	defer public.Close()

	f := NewFetcher(time.Second)
	publicPort := netip.MustParseAddrPort(strings.TrimPrefix(public.URL, "http://")).Port()
	f.allowed = func(addr netip.AddrPort) bool { return addr.Port() == publicPort }

	_, err := f.Fetch(context.Background(), public.URL+"/photo.png")
	require.ErrorIs(t, err, ErrBlockedHost)
}

func TestPublicAddr(t *testing.T) {
	blocked := []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254", "0.0.0.0", "::1", "fe80::1", "fc00::1", "100.64.0.1", "224.0.0.1"}
	for _, raw := range blocked {
		assert.False(t, publicAddr(netip.MustParseAddr(raw)), raw)
	}
	for _, raw := range []string{"8.8.8.8", "142.250.72.14", "2606:4700:4700::1111"} {
		assert.True(t, publicAddr(netip.MustParseAddr(raw)), raw)
	}
}

func TestFetcherDecodesDataURI(t *testing.T) {
	img := Image{Data: pngBytes(t, 2, 2), MIMEType: "image/png"}

	got, err := NewFetcher(0).Fetch(context.Background(), img.DataURI())
	require.NoError(t, err)
	assert.Equal(t, img.Data, got.Data)
}
