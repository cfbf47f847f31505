package model

import (
	"strings"
	"time"
)

// Track 目录中的一条环境音轨，UniquePath 作为缓存键，在整个目录内唯一
type Track struct {
	Locator    string `json:"url"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Category   string `json:"category"`
	UniquePath string `json:"fullPath"`
}

// Slug 把分类名转换为 HTTP 接口使用的通道标识，
// 例如 "Rain Makes Everything Better" -> "rain-makes-everything-better"
func Slug(category string) string {
	return strings.Join(strings.Fields(strings.ToLower(category)), "-")
}

// SameTracks 判断两个列表的音轨及顺序是否完全一致
func SameTracks(a, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TrackRecord MySQL 目录源使用的音轨表
type TrackRecord struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Category   string    `json:"category" gorm:"size:100;not null;index"`
	Title      string    `json:"title" gorm:"size:255;not null"`
	Artist     string    `json:"artist" gorm:"size:255;default:'Unknown'"`
	Locator    string    `json:"locator" gorm:"size:1024;not null"`
	UniquePath string    `json:"uniquePath" gorm:"size:512;not null;uniqueIndex"`
	State      int8      `json:"state" gorm:"default:1"` // 0=disabled, 1=normal
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (TrackRecord) TableName() string {
	return "ambient_tracks"
}

// ToTrack 转换为引擎使用的 Track
func (r *TrackRecord) ToTrack() Track {
	artist := r.Artist
	if artist == "" {
		artist = "Unknown"
	}
	return Track{
		Locator:    r.Locator,
		Title:      r.Title,
		Artist:     artist,
		Category:   r.Category,
		UniquePath: r.UniquePath,
	}
}
