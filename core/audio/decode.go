package audio

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// resampleQuality 重采样质量，取值越大越慢
const resampleQuality = 4

// SupportedExt 判断文件扩展名是否可以解码
func SupportedExt(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".wav", ".flac", ".ogg":
		return true
	}
	return false
}

// Decode 根据文件扩展名解码整段音频，并重采样到 sr
func Decode(name string, data []byte, sr beep.SampleRate) (*beep.Buffer, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	rc := io.NopCloser(bytes.NewReader(data))
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(rc)
	case ".wav":
		streamer, format, err = wav.Decode(bytes.NewReader(data))
	case ".flac":
		streamer, format, err = flac.Decode(bytes.NewReader(data))
	case ".ogg":
		streamer, format, err = vorbis.Decode(rc)
	default:
		return nil, fmt.Errorf("不支持的音频格式: %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("解码 %s 失败: %w", name, err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != sr {
		s = beep.Resample(resampleQuality, format.SampleRate, sr, streamer)
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2})
	buf.Append(s)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("解码 %s 失败: %w", name, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("音频 %s 没有采样数据", name)
	}
	return buf, nil
}
