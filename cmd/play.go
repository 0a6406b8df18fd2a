package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"Melodeck/client"
	"Melodeck/core/player"
	"Melodeck/model"

	"github.com/spf13/cobra"
)

var (
	playServer   string
	playEmail    string
	playPassword string
	playSource   string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "终端播放器",
	Long: `登录服务器，加载曲目来源并进入交互式播放控制。
来源: all | search:<关键词> | playlist:<id> | liked`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c := client.New(playServer, nil)

		if playEmail == "" {
			playEmail = os.Getenv("MELODECK_EMAIL")
		}
		if playPassword == "" {
			playPassword = os.Getenv("MELODECK_PASSWORD")
		}
		if playEmail != "" {
			user, err := c.Login(ctx, playEmail, playPassword)
			if err != nil {
				return fmt.Errorf("登录失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已登录: %s\n", user.Username)
		}

		tracks, err := loadSource(ctx, c, playSource)
		if err != nil {
			return err
		}

		out := player.NewConsoleOutput(cmd.OutOrStdout())
		session, err := player.NewSession(out)
		if err != nil {
			return err
		}
		defer session.Stop()

		sh := &playerShell{session: session, output: out, tracks: tracks, w: cmd.OutOrStdout()}
		sh.printList()
		return sh.run(cmd.InOrStdin())
	},
}

func init() {
	playCmd.Flags().StringVar(&playServer, "server", "http://localhost:3001", "服务器地址")
	playCmd.Flags().StringVar(&playEmail, "email", "", "登录邮箱 (默认读取 MELODECK_EMAIL)")
	playCmd.Flags().StringVar(&playPassword, "password", "", "登录密码 (默认读取 MELODECK_PASSWORD)")
	playCmd.Flags().StringVar(&playSource, "source", "all", "曲目来源")
	rootCmd.AddCommand(playCmd)
}

// loadSource fetches the tracks named by source.
func loadSource(ctx context.Context, c *client.Client, source string) ([]model.Track, error) {
	kind, arg, _ := strings.Cut(source, ":")
	switch kind {
	case "", "all":
		return c.ListTracks(ctx)
	case "search":
		return c.Search(ctx, arg)
	case "playlist":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid playlist id %q", arg)
		}
		return c.PlaylistTracks(ctx, id)
	case "liked":
		user := c.User()
		if user == nil {
			return nil, errors.New("liked songs require --email")
		}
		return c.LikedTracks(ctx, user.ID)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

// playerShell is the read-eval loop of the terminal player. It drives the
// session from a single goroutine.
type playerShell struct {
	session *player.Session
	output  *player.ConsoleOutput
	tracks  []model.Track
	w       io.Writer
}

func (sh *playerShell) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(sh.w, "> ")
	for scanner.Scan() {
		quit, err := sh.exec(scanner.Text())
		if err != nil {
			fmt.Fprintf(sh.w, "error: %v\n", err)
		}
		if quit {
			return nil
		}
		fmt.Fprint(sh.w, "> ")
	}
	return scanner.Err()
}

// exec runs one command line.
func (sh *playerShell) exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "list", "ls":
		sh.printList()
	case "play":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(sh.tracks) {
			return false, fmt.Errorf("play takes a track number between 1 and %d", len(sh.tracks))
		}
		return false, sh.session.Play(sh.tracks[n-1], sh.tracks)
	case "pause":
		return false, sh.session.Pause()
	case "resume":
		return false, sh.session.Resume()
	case "next":
		return false, sh.session.Next()
	case "prev":
		return false, sh.session.Previous()
	case "end":
		if !sh.output.Finish() {
			return false, errors.New("nothing is playing")
		}
	case "shuffle":
		on := sh.session.ToggleShuffle()
		fmt.Fprintf(sh.w, "shuffle %s (applies to the next play)\n", onOff(on))
	case "repeat":
		fmt.Fprintf(sh.w, "repeat  %s\n", sh.session.ToggleRepeatMode())
	case "seek":
		sec, err := strconv.ParseFloat(arg, 64)
		if err != nil || sec < 0 {
			return false, errors.New("seek takes a number of seconds")
		}
		return false, sh.session.Seek(time.Duration(sec * float64(time.Second)))
	case "volume":
		pct, err := strconv.Atoi(arg)
		if err != nil || pct < 0 || pct > 100 {
			return false, errors.New("volume takes a value between 0 and 100")
		}
		return false, sh.session.SetVolume(float64(pct) / 100)
	case "state":
		sh.printState()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, nil
}

func (sh *playerShell) printList() {
	if len(sh.tracks) == 0 {
		fmt.Fprintln(sh.w, "no tracks")
		return
	}
	for i, t := range sh.tracks {
		fmt.Fprintf(sh.w, "%3d. %s", i+1, t.Title)
		if t.Artist != "" {
			fmt.Fprintf(sh.w, " - %s", t.Artist)
		}
		fmt.Fprintln(sh.w)
	}
}

func (sh *playerShell) printState() {
	st := sh.session.State()
	current := "-"
	if t, ok := st.CurrentTrack(); ok {
		current = t.Title
	}
	fmt.Fprintf(sh.w, "track: %s (%d/%d)  playing: %t  repeat: %s  shuffle: %s  volume: %d%%  position: %s\n",
		current, st.CurrentIndex+1, len(st.Queue), st.IsPlaying, st.RepeatMode, onOff(st.Shuffle),
		int(st.Volume*100+0.5), st.Position.Truncate(time.Second))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
