package service

import (
	"Roger/internal/api/config"
	"Roger/internal/pkg/util"
	"context"
	"fmt"
	log "log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	defaultRetention           = 48 * time.Hour
	defaultDownloadConcurrency = 4
	downloadSuffix             = ".download"
)

// AudioFiles 播放器使用的本地音频文件
type AudioFiles interface {
	// LocalPath 已缓存时返回本地路径
	LocalPath(audioURL string) (string, bool)
	// Prefetch 在后台下载，重复调用不会重复下载
	Prefetch(audioURL string)
}

// AudioCache 远程音频的本地缓存。同一 URL 同时只下载一次，完成后按文件名放入缓存目录。
type AudioCache struct {
	dir       string
	tempDir   string
	retention time.Duration
	http      *resty.Client
	sem       *semaphore.Weighted

	mu      sync.Mutex
	pending map[string]bool
}

func NewAudioCache(cacheCfg config.CacheConfig, audioCfg config.AudioConfig) *AudioCache {
	retention := time.Duration(cacheCfg.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultRetention
	}
	concurrency := audioCfg.DownloadConcurrency
	if concurrency <= 0 {
		concurrency = defaultDownloadConcurrency
	}
	return &AudioCache{
		dir:       filepath.Join(cacheCfg.Dir, "audio"),
		tempDir:   cacheCfg.TempDir,
		retention: retention,
		http:      resty.New().SetTimeout(2 * time.Minute),
		sem:       semaphore.NewWeighted(int64(concurrency)),
		pending:   make(map[string]bool),
	}
}

// TempDir 录音等临时文件目录
func (c *AudioCache) TempDir() string {
	return c.tempDir
}

// CacheFilename 缓存文件名取 URL 路径的最后一段，.m4a.aac 规范为 .m4a
func CacheFilename(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil || u.Path == "" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return util.NormalizeAudioFilename(name)
}

func (c *AudioCache) cachePath(audioURL string) string {
	name := CacheFilename(audioURL)
	if name == "" {
		return ""
	}
	return filepath.Join(c.dir, name)
}

func localFilePath(audioURL string) (string, bool) {
	if !strings.HasPrefix(audioURL, "file://") {
		return "", false
	}
	u, err := url.Parse(audioURL)
	if err != nil {
		return strings.TrimPrefix(audioURL, "file://"), true
	}
	return u.Path, true
}

func (c *AudioCache) LocalPath(audioURL string) (string, bool) {
	p, local := localFilePath(audioURL)
	if !local {
		p = c.cachePath(audioURL)
	}
	if p == "" {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Pending 正在下载的 URL 数量
func (c *AudioCache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *AudioCache) Prefetch(audioURL string) {
	c.CacheRemoteAudioURL(context.Background(), audioURL, nil)
}

// CacheRemoteAudioURL 下载远程音频。file:// 地址、已缓存或正在下载的 URL 直接跳过，done 不会被调用。
func (c *AudioCache) CacheRemoteAudioURL(ctx context.Context, audioURL string, done func(path string, err error)) {
	if _, local := localFilePath(audioURL); local {
		return
	}
	dest := c.cachePath(audioURL)
	if dest == "" {
		log.WarnContext(ctx, "audio url without filename", "url", audioURL)
		return
	}
	if _, err := os.Stat(dest); err == nil {
		return
	}

	c.mu.Lock()
	if c.pending[audioURL] {
		c.mu.Unlock()
		return
	}
	c.pending[audioURL] = true
	c.mu.Unlock()

	go func() {
		err := c.download(ctx, audioURL, dest)
		c.mu.Lock()
		delete(c.pending, audioURL)
		c.mu.Unlock()
		if err != nil {
			log.WarnContext(ctx, "audio download failed", "url", audioURL, "err", err)
		}
		if done != nil {
			done(dest, err)
		}
	}()
}

func (c *AudioCache) download(ctx context.Context, audioURL, dest string) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	tmp := filepath.Join(c.tempDir, uuid.NewString()+downloadSuffix)

	resp, err := c.http.R().SetContext(ctx).SetOutput(tmp).Get(audioURL)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if resp.IsError() {
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: status %d", audioURL, resp.StatusCode())
	}
	return os.Rename(tmp, dest)
}

// Prune 删除缓存目录与临时目录中超过保留期的文件，返回删除数量
func (c *AudioCache) Prune(now time.Time) int {
	removed := 0
	for _, dir := range []string{c.dir, c.tempDir} {
		removed += pruneDir(dir, now.Add(-c.retention))
	}
	return removed
}

func pruneDir(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("read cache dir failed", "dir", dir, "err", err)
		}
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			log.Warn("remove expired cache file failed", "file", e.Name(), "err", err)
			continue
		}
		removed++
	}
	return removed
}
