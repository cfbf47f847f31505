package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"AmbientFM/logger"
	"AmbientFM/model"

	"github.com/gopxl/beep/v2"
)

// Loader 加载一个音轨并返回可播放的 Handle，progress 接收 0..100 的下载进度
type Loader interface {
	Load(ctx context.Context, track model.Track, progress func(percent int)) (*Handle, error)
}

// ObjectGetter 从对象存储读取对象
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

// Fetcher 通过 http(s)、本地文件或 minio://bucket/key 获取音频并解码
type Fetcher struct {
	Client     *http.Client
	Objects    ObjectGetter
	SampleRate beep.SampleRate
}

// NewFetcher 创建 Fetcher，objects 可以为空
func NewFetcher(sr beep.SampleRate, objects ObjectGetter) *Fetcher {
	return &Fetcher{
		Client:     &http.Client{Timeout: 2 * time.Minute},
		Objects:    objects,
		SampleRate: sr,
	}
}

func (f *Fetcher) Load(ctx context.Context, track model.Track, progress func(int)) (*Handle, error) {
	start := time.Now()
	body, size, err := f.open(ctx, track.Locator)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(&progressReader{r: body, total: size, report: progress})
	if err != nil {
		return nil, fmt.Errorf("读取音频 %s 失败: %w", track.UniquePath, err)
	}

	name := track.UniquePath
	if !SupportedExt(name) {
		name = track.Locator
		if u, err := url.Parse(track.Locator); err == nil {
			name = u.Path
		}
	}
	buf, err := Decode(name, data, f.SampleRate)
	if err != nil {
		return nil, err
	}
	logger.Debug("音频加载完成",
		logger.String("path", track.UniquePath),
		logger.Int("bytes", len(data)),
		logger.Duration("duration", f.SampleRate.D(buf.Len())),
		logger.Duration("elapsed", time.Since(start)))
	return NewHandle(track.UniquePath, buf), nil
}

func (f *Fetcher) open(ctx context.Context, locator string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, 0, fmt.Errorf("无效的音频地址 %q: %w", locator, err)
	}
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, 0, err
		}
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("请求音频失败: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("请求音频失败: HTTP %d", resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil
	case "minio":
		if f.Objects == nil {
			return nil, 0, fmt.Errorf("MinIO 客户端未初始化")
		}
		return f.Objects.GetObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file", "":
		p := u.Path
		if u.Scheme == "" {
			p = locator
		}
		file, err := os.Open(p)
		if err != nil {
			return nil, 0, err
		}
		var size int64
		if info, err := file.Stat(); err == nil {
			size = info.Size()
		}
		return file, size, nil
	}
	return nil, 0, fmt.Errorf("不支持的音频地址协议: %s", u.Scheme)
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.report != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
