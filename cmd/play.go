package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AmbientFM/logger"

	"github.com/spf13/cobra"
)

var (
	playLanes    []string
	playVolume   int
	shuffleEvery time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "不启动 HTTP 接口，直接在本机播放",
	Long:  `初始化后开始播放指定分类（默认全部），可选地定时双通道随机切换，Ctrl+C 退出。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Println("正在加载音轨...")
		if err := a.player.RetryInitialization(ctx); err != nil {
			return err
		}
		a.watchCatalog(ctx)

		lanes := playLanes
		if len(lanes) == 0 {
			for _, l := range a.player.Lanes() {
				if len(l.Tracks()) > 0 {
					lanes = append(lanes, l.Slug())
				}
			}
		}
		for _, slug := range lanes {
			if playVolume >= 0 {
				if err := a.player.SetVolume(slug, playVolume); err != nil {
					return err
				}
			}
			if err := a.player.Toggle(ctx, slug); err != nil {
				return fmt.Errorf("播放 %s 失败: %w", slug, err)
			}
		}

		changes, cancel := a.player.Subscribe()
		defer cancel()
		printNowPlaying(a)

		var tick <-chan time.Time
		if shuffleEvery > 0 {
			t := time.NewTicker(shuffleEvery)
			defer t.Stop()
			tick = t.C
		}

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\n停止播放")
				return nil
			case <-changes:
				printNowPlaying(a)
			case <-tick:
				if err := a.player.Shuffle(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("随机切换失败", logger.ErrorField(err))
				}
			}
		}
	},
}

// printNowPlaying 打印每个正在播放的通道的当前音轨
func printNowPlaying(a *app) {
	st := a.player.Status()
	if st.Error != "" {
		fmt.Printf("! %s\n", st.Error)
	}
	for _, l := range st.Lanes {
		if !l.IsPlaying || l.Track == nil {
			continue
		}
		fmt.Printf("%-32s %3d%%  %s - %s\n", l.Category, l.Volume, l.Track.Title, l.Track.Artist)
	}
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringSliceVarP(&playLanes, "lane", "l", nil, "要播放的分类或通道标识，默认全部")
	playCmd.Flags().IntVarP(&playVolume, "volume", "v", -1, "初始音量 0-100，默认使用 DEFAULT_VOLUME")
	playCmd.Flags().DurationVar(&shuffleEvery, "shuffle-every", 0, "定时随机切换的间隔，0 表示不切换")

	playCmd.Example = `  # 播放所有分类
  ambientfm play

  # 只播放雨声，音量 30
  ambientfm play -l rain-makes-everything-better -v 30

  # 每 20 分钟随机切换一次
  ambientfm play --shuffle-every 20m`
}
