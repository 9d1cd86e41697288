package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxImageBytes  = 10 << 20
	DefaultMaxImagePixels = 40_000_000
	imageCacheSize        = 64
)

var (
	ErrNotImage          = errors.New("not an image")
	ErrImageTooLarge     = errors.New("image too large")
	ErrUnsupportedSource = errors.New("unsupported image source")
	ErrPrivateHost       = errors.New("image host is not public")
)

// ImageLoader resolves element image sources, data URIs or http(s) URLs, into
// decoded images. Decoded images are cached by source.
//
// MaxBytes bounds the encoded image and MaxPixels its decoded size. Remote
// images are only fetched from public addresses unless AllowPrivateHosts is
// set.
type ImageLoader struct {
	Client            *http.Client
	MaxBytes          int64
	MaxPixels         int64
	AllowPrivateHosts bool

	mu    sync.Mutex
	cache map[[sha256.Size]byte]image.Image
}

func NewImageLoader() *ImageLoader {
	l := &ImageLoader{
		MaxBytes:  DefaultMaxImageBytes,
		MaxPixels: DefaultMaxImagePixels,
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: l.checkDialAddr}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	l.Client = &http.Client{Timeout: 15 * time.Second, Transport: transport}
	return l
}

// checkDialAddr runs after name resolution, so it sees the address actually
// dialed.
func (l *ImageLoader) checkDialAddr(_, address string, _ syscall.RawConn) error {
	if l.AllowPrivateHosts {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("dial %s: %w", host, ErrPrivateHost)
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

func (l *ImageLoader) maxBytes() int64 {
	if l.MaxBytes <= 0 {
		return DefaultMaxImageBytes
	}
	return l.MaxBytes
}

func (l *ImageLoader) maxPixels() int64 {
	if l.MaxPixels <= 0 {
		return DefaultMaxImagePixels
	}
	return l.MaxPixels
}

func (l *ImageLoader) Load(ctx context.Context, src string) (image.Image, error) {
	key := sha256.Sum256([]byte(src))
	l.mu.Lock()
	if img, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return img, nil
	}
	l.mu.Unlock()

	data, err := l.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, l.maxPixels())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.cache == nil || len(l.cache) >= imageCacheSize {
		l.cache = make(map[[sha256.Size]byte]image.Image)
	}
	l.cache[key] = img
	l.mu.Unlock()
	return img, nil
}

// Decode sniffs data and decodes it when it is a supported image format of
// at most maxPixels pixels. The header is checked before any pixel buffer
// is allocated.
func Decode(data []byte, maxPixels int64) (image.Image, error) {
	if !filetype.IsImage(data) {
		return nil, ErrNotImage
	}
	kind, _ := filetype.Match(data)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", kind.MIME.Value, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%dx%d %s: %w", cfg.Width, cfg.Height, kind.MIME.Value, ErrImageTooLarge)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.MIME.Value, err)
	}
	return img, nil
}

func (l *ImageLoader) fetch(ctx context.Context, src string) ([]byte, error) {
	switch {
	case strings.HasPrefix(src, "data:"):
		return decodeDataURI(src, l.maxBytes())
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return l.download(ctx, src)
	}
	return nil, ErrUnsupportedSource
}

func decodeDataURI(uri string, limit int64) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri: %w", ErrUnsupportedSource)
	}
	var data []byte
	if strings.HasSuffix(header, ";base64") {
		if int64(base64.StdEncoding.DecodedLen(len(payload))) > limit+2 {
			return nil, ErrImageTooLarge
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data uri payload: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("data uri payload: %w", err)
		}
		data = []byte(unescaped)
	}
	if int64(len(data)) > limit {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

func (l *ImageLoader) download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}

	limit := l.maxBytes()
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrImageTooLarge
	}
	return data, nil
}
