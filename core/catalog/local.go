package catalog

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/logger"
	"AmbientFM/model"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ManifestFile 目录根下可选的清单文件名
const ManifestFile = "catalog.yaml"

// Manifest 清单文件格式，用于登记远程音轨或补充标题和艺术家
type Manifest struct {
	Tracks []ManifestTrack `yaml:"tracks"`
}

// ManifestTrack 清单中的一条音轨。URL 为空时 Path 视为相对目录根的本地文件。
type ManifestTrack struct {
	Category string `yaml:"category"`
	Title    string `yaml:"title"`
	Artist   string `yaml:"artist"`
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
}

// LocalSupplier 扫描 <Dir>/<分类>/ 下的音频文件，并合并清单中的条目
type LocalSupplier struct {
	dir   string
	limit int
	quiet time.Duration
}

// NewLocalSupplier 创建本地目录源
func NewLocalSupplier(dir string, limit int) *LocalSupplier {
	return &LocalSupplier{dir: dir, limit: limit, quiet: 200 * time.Millisecond}
}

func (s *LocalSupplier) ListTracks(ctx context.Context, category string) []model.Track {
	tracks, err := s.scan(category)
	if err != nil {
		logger.Warn("扫描本地目录失败", logger.String("category", category), logger.ErrorField(err))
		return []model.Track{}
	}
	return pick(tracks, s.limit)
}

func (s *LocalSupplier) scan(category string) ([]model.Track, error) {
	byPath := make(map[string]int)
	var tracks []model.Track

	entries, err := os.ReadDir(filepath.Join(s.dir, category))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !audio.SupportedExt(e.Name()) {
			continue
		}
		unique := category + "/" + e.Name()
		byPath[unique] = len(tracks)
		tracks = append(tracks, newTrack(category, unique, fileLocator(filepath.Join(s.dir, category, e.Name()))))
	}

	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	for _, m := range manifest.Tracks {
		if m.Category != category || (m.URL == "" && m.Path == "") {
			continue
		}
		t := manifestTrack(s.dir, m)
		if i, ok := byPath[t.UniquePath]; ok {
			tracks[i] = t
			continue
		}
		byPath[t.UniquePath] = len(tracks)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (s *LocalSupplier) readManifest() (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(s.dir, ManifestFile))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("解析清单 %s 失败: %w", ManifestFile, err)
	}
	return m, nil
}

func manifestTrack(dir string, m ManifestTrack) model.Track {
	unique := m.Path
	if unique == "" {
		u, err := url.Parse(m.URL)
		if err == nil {
			unique = m.Category + "/" + filepath.Base(u.Path)
		} else {
			unique = m.Category + "/" + m.URL
		}
	}
	locator := m.URL
	if locator == "" {
		locator = fileLocator(filepath.Join(dir, filepath.FromSlash(m.Path)))
	}
	t := newTrack(m.Category, unique, locator)
	if m.Title != "" {
		t.Title = m.Title
	}
	if m.Artist != "" {
		t.Artist = m.Artist
	}
	return t
}

func fileLocator(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

// Watch 监听目录变化，变化平息 quiet 之后调用 trigger，直到 ctx 结束
func (s *LocalSupplier) Watch(ctx context.Context, categories []string, trigger func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("监听目录 %s 失败: %w", s.dir, err)
	}
	for _, c := range categories {
		sub := filepath.Join(s.dir, c)
		if err := watcher.Add(sub); err != nil {
			logger.Debug("分类目录不可监听", logger.String("dir", sub), logger.ErrorField(err))
		}
	}

	var pending time.Time
	check := time.NewTicker(s.quiet / 2)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// 新建的分类目录也要监听
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			pending = time.Now()

		case <-check.C:
			if pending.IsZero() || time.Since(pending) < s.quiet {
				continue
			}
			pending = time.Time{}
			logger.Debug("本地目录发生变化", logger.String("dir", s.dir))
			trigger()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}
