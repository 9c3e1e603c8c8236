package plugin

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
)

// fileDownload fetches a URL into the plug-in's cache directory and returns
// the local path. Repeat calls for the same URL are served from the cache.
func (p *Plugin) fileDownload(ctx context.Context, _ *controller.Controller, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("file download requires a url argument")
	}

	local := filepath.Join(p.cacheDir, cacheFileName(url))
	if _, err := os.Stat(local); err == nil {
		p.log.Debug("download cache hit", "url", url, "path", local)
		return local, nil
	}

	if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download cache: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	// Write through a temp file so a failed download never leaves a
	// half-written cache entry behind.
	tmp, err := os.CreateTemp(p.cacheDir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing download: %w", err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return nil, fmt.Errorf("caching download: %w", err)
	}

	p.log.Info("downloaded file", "url", url, "path", local)
	return local, nil
}

// cacheFileName keys the cache by URL digest, keeping the original extension
// so downstream tooling can sniff the file type.
func cacheFileName(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:]) + path.Ext(url)
}
