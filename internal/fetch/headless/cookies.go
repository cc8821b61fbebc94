package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// Cookie is one saved session cookie. The on-disk layout matches what a
// browser export produces, so users can refresh a session by dumping
// cookies from a logged-in browser profile.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
}

// CookieJar loads per-platform session cookies from a directory of
// <platform>.json files and installs them into browser tasks.
type CookieJar struct {
	dir string

	mu     sync.Mutex
	loaded map[string][]Cookie
}

// NewCookieJar builds a jar over dir. Missing files are not an error;
// platforms without a saved session simply browse anonymously.
func NewCookieJar(dir string) *CookieJar {
	return &CookieJar{dir: dir, loaded: make(map[string][]Cookie)}
}

// install sets the platform's saved cookies on the browser task context.
func (j *CookieJar) install(ctx context.Context, platformName string) error {
	cookies, err := j.load(platformName)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	if err := network.SetCookies(params).Do(ctx); err != nil {
		return fmt.Errorf("set cookies for %s: %w", platformName, err)
	}
	return nil
}

func (j *CookieJar) load(platformName string) ([]Cookie, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if cookies, ok := j.loaded[platformName]; ok {
		return cookies, nil
	}

	data, err := os.ReadFile(filepath.Join(j.dir, platformName+".json"))
	if os.IsNotExist(err) {
		j.loaded[platformName] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookie file for %s: %w", platformName, err)
	}
	j.loaded[platformName] = cookies
	return cookies, nil
}
