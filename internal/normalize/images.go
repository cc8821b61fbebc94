package normalize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/hash"
	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

const maxImageBytes = 20 << 20

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)\)`)
	htmlImagePattern     = regexp.MustCompile(`<img[^>]+src="(https?://[^"]+)"`)
)

// ImageLocalizer downloads referenced images into the media directory and
// rewrites document references to the local copies. Failures are
// per-image: a missing image never fails the document.
type ImageLocalizer struct {
	client    *http.Client
	mediaDir  string
	userAgent string
	logger    *zap.Logger
}

// NewImageLocalizer builds a localizer storing files under mediaDir.
func NewImageLocalizer(client *http.Client, mediaDir, userAgent string, logger *zap.Logger) *ImageLocalizer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImageLocalizer{client: client, mediaDir: mediaDir, userAgent: userAgent, logger: logger}
}

// Localize finds remote image references in the document body, downloads
// each with a platform-appropriate Referer, and rewrites the body to point
// at the local files. References whose download fails keep the remote URL.
func (l *ImageLocalizer) Localize(ctx context.Context, doc *reader.CanonicalDocument, plat platform.Platform) {
	urls := extractImageURLs(doc.Body)
	if len(urls) == 0 {
		return
	}
	if err := os.MkdirAll(l.mediaDir, 0o750); err != nil {
		l.logger.Warn("create media dir failed, keeping remote images",
			zap.String("dir", l.mediaDir), zap.Error(err))
		return
	}

	referer := l.refererFor(doc.SourceURL, plat)
	for _, remote := range urls {
		local, err := l.download(ctx, remote, referer)
		ref := reader.MediaRef{Remote: remote}
		if err != nil {
			l.logger.Warn("image download failed, keeping remote reference",
				zap.String("url", remote), zap.Error(err))
		} else {
			ref.Local = local
			doc.Body = strings.ReplaceAll(doc.Body, remote, local)
		}
		doc.Media = append(doc.Media, ref)
	}
}

// refererFor prefers the platform's known referer, falling back to the
// source URL's origin. Several platforms reject image requests without it.
func (l *ImageLocalizer) refererFor(sourceURL string, plat platform.Platform) string {
	if plat.Referer != "" {
		return plat.Referer
	}
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		return u.Scheme + "://" + u.Host + "/"
	}
	return ""
}

func (l *ImageLocalizer) download(ctx context.Context, remote, referer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image body")
	}

	// Name is derived from the remote URL, so re-syncs reuse the same
	// file instead of accumulating copies.
	name := "img_" + hash.Short([]byte(remote), 12) + guessExtension(remote, data)
	target := filepath.Join(l.mediaDir, name)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := os.WriteFile(target, data, 0o640); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return target, nil
}

func extractImageURLs(body string) []string {
	seen := map[string]bool{}
	var urls []string
	for _, groups := range markdownImagePattern.FindAllStringSubmatch(body, -1) {
		if !seen[groups[1]] {
			seen[groups[1]] = true
			urls = append(urls, groups[1])
		}
	}
	for _, groups := range htmlImagePattern.FindAllStringSubmatch(body, -1) {
		if !seen[groups[1]] {
			seen[groups[1]] = true
			urls = append(urls, groups[1])
		}
	}
	return urls
}

// guessExtension sniffs the magic bytes first and falls back to the URL.
func guessExtension(remote string, data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return ".jpg"
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return ".png"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return ".gif"
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")):
		return ".webp"
	}
	lower := strings.ToLower(remote)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.Contains(lower, ext) {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
	}
	return ".jpg"
}
