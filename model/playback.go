package model

// PlaybackState 单个通道的播放状态
type PlaybackState struct {
	IsPlaying         bool `json:"isPlaying"`
	Volume            int  `json:"volume"`
	CurrentTrackIndex int  `json:"currentTrackIndex"`
}

// LaneStatus 单个分类通道的状态快照
type LaneStatus struct {
	Category string `json:"category"`
	Slug     string `json:"slug"`
	PlaybackState
	Track  *Track  `json:"track,omitempty"`
	Tracks []Track `json:"tracks"`
}

// PlayerStatus 播放器全局状态快照
type PlayerStatus struct {
	IsInitialized bool         `json:"isInitialized"`
	IsShuffling   bool         `json:"isShuffling"`
	Error         string       `json:"error,omitempty"`
	FullyReady    bool         `json:"fullyReady"`
	Lanes         []LaneStatus `json:"lanes"`
}
