// Package main provides the remote control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/beatdeck/internal/api/connect"
	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/app/transport"
	"github.com/osa030/beatdeck/internal/domain/track"
)

var (
	app    = kingpin.New("beatdeck", "beatdeck remote control")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set API_TOKEN env)").Envar("API_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show the now-playing state")

	// watch command
	watchCmd = app.Command("watch", "Stream state snapshots")

	// play command
	playCmd       = app.Command("play", "Play a pack or kit")
	playContainer = playCmd.Arg("container", "Container key, e.g. pack:42 or kit:7").Required().String()
	playIndex     = playCmd.Arg("index", "Start index").Default("0").Int()

	// transport commands
	toggleCmd  = app.Command("toggle", "Toggle play/pause")
	pauseCmd   = app.Command("pause", "Pause playback")
	resumeCmd  = app.Command("resume", "Resume playback")
	nextCmd    = app.Command("next", "Skip to the next track")
	prevCmd    = app.Command("prev", "Restart or go to the previous track").Alias("previous")
	shuffleCmd = app.Command("shuffle", "Toggle shuffle")
	repeatCmd  = app.Command("repeat", "Set repeat mode")
	repeatMode = repeatCmd.Arg("mode", "Repeat mode").Required().Enum(string(queue.RepeatOff), string(queue.RepeatAll), string(queue.RepeatOne))
	seekCmd    = app.Command("seek", "Seek within the current track")
	seekPct    = seekCmd.Arg("percent", "Position in percent (0-100)").Required().Float64()
	jumpCmd    = app.Command("jump", "Play the queue entry at index")
	jumpIndex  = jumpCmd.Arg("index", "Queue index").Required().Int()
	dropCmd    = app.Command("drop", "Remove the queue entry at index")
	dropIndex  = dropCmd.Arg("index", "Queue index").Required().Int()

	// playlist commands
	playlistCmd       = app.Command("playlist", "Manage the persistent playlist")
	playlistListCmd   = playlistCmd.Command("list", "List the playlist").Default()
	playlistAddCmd    = playlistCmd.Command("add", "Add a track")
	playlistAddID     = playlistAddCmd.Arg("track-id", "Track ID").Required().String()
	playlistAddTitle  = playlistAddCmd.Flag("title", "Track title").String()
	playlistAddArtist = playlistAddCmd.Flag("artist", "Artist name").String()
	playlistAddFrom   = playlistAddCmd.Flag("from", "Container key the track belongs to, e.g. pack:42").String()
	playlistRemoveCmd = playlistCmd.Command("remove", "Remove the track at index")
	playlistRemoveIdx = playlistRemoveCmd.Arg("index", "Playlist index").Required().Int()
	playlistClearCmd  = playlistCmd.Command("clear", "Clear the playlist")
	playlistPlayCmd   = playlistCmd.Command("play", "Play the playlist")
	playlistPlayIdx   = playlistPlayCmd.Arg("index", "Start index").Default("0").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenHeaderInterceptor(*token)),
	)

	ctx := context.Background()

	// Execute command
	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	case playCmd.FullCommand():
		err = play(ctx, client, *playContainer, *playIndex)
	case toggleCmd.FullCommand():
		err = dispatch(ctx, client, transport.TogglePlay{})
	case pauseCmd.FullCommand():
		err = dispatch(ctx, client, transport.Pause{})
	case resumeCmd.FullCommand():
		err = dispatch(ctx, client, transport.Resume{})
	case nextCmd.FullCommand():
		err = dispatch(ctx, client, transport.Next{})
	case prevCmd.FullCommand():
		err = dispatch(ctx, client, transport.Previous{})
	case shuffleCmd.FullCommand():
		err = dispatch(ctx, client, transport.ToggleShuffle{})
	case repeatCmd.FullCommand():
		err = dispatch(ctx, client, transport.SetRepeat{Mode: queue.RepeatMode(*repeatMode)})
	case seekCmd.FullCommand():
		err = dispatch(ctx, client, transport.SeekToPercent{Pct: *seekPct / 100})
	case jumpCmd.FullCommand():
		err = dispatch(ctx, client, transport.PlayAtIndex{Index: *jumpIndex})
	case dropCmd.FullCommand():
		err = dispatch(ctx, client, transport.QueueRemove{Index: *dropIndex})
	case playlistListCmd.FullCommand():
		err = listPlaylist(ctx, client)
	case playlistAddCmd.FullCommand():
		err = addToPlaylist(ctx, client)
	case playlistRemoveCmd.FullCommand():
		err = removeFromPlaylist(ctx, client, *playlistRemoveIdx)
	case playlistClearCmd.FullCommand():
		err = client.ClearPlaylist(ctx)
		if err == nil {
			fmt.Println("Playlist cleared")
		}
	case playlistPlayCmd.FullCommand():
		err = client.PlayPlaylist(ctx, *playlistPlayIdx)
		if err == nil {
			fmt.Println("Playing playlist")
		}
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, client *apiconnect.Client, cmd transport.Command) error {
	if _, err := client.Dispatch(ctx, cmd); err != nil {
		return err
	}
	fmt.Printf("Sent %s\n", transport.Name(cmd))
	return nil
}

func status(ctx context.Context, client *apiconnect.Client) error {
	snap, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\n=== NOW PLAYING ===")
	printSnapshot(snap)
	return nil
}

func play(ctx context.Context, client *apiconnect.Client, key string, index int) error {
	c, err := track.ParseContainer(key)
	if err != nil {
		return err
	}
	if err := client.PlayContainer(ctx, c, index); err != nil {
		return err
	}
	fmt.Printf("Playing %s from #%d\n", c.Key(), index)
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching state. Press Ctrl+C to exit.")

	return client.Watch(ctx, func(m apiconnect.WatchMessage) error {
		fmt.Printf("\n[Sequence: %d] %s\n", m.SequenceNo, m.Event)
		printSnapshot(m.Snapshot)
		return nil
	})
}

func listPlaylist(ctx context.Context, client *apiconnect.Client) error {
	tracks, err := client.ListPlaylist(ctx)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("Playlist is empty")
		return nil
	}
	for i, t := range tracks {
		fmt.Printf("  %3d. %s\n", i, formatTrack(t))
	}
	return nil
}

func addToPlaylist(ctx context.Context, client *apiconnect.Client) error {
	t := track.Standalone(*playlistAddID, *playlistAddTitle, *playlistAddArtist)
	if *playlistAddFrom != "" {
		c, err := track.ParseContainer(*playlistAddFrom)
		if err != nil {
			return err
		}
		t.Source = track.Source{Kind: c.Kind, ContainerID: c.ID}
	}

	res, err := client.AddToPlaylist(ctx, t)
	if err != nil {
		return err
	}
	if res.Added == 0 {
		fmt.Printf("Already in playlist (%d tracks)\n", res.Length)
		return nil
	}
	fmt.Printf("Added (%d tracks)\n", res.Length)
	return nil
}

func removeFromPlaylist(ctx context.Context, client *apiconnect.Client, index int) error {
	res, err := client.RemoveFromPlaylist(ctx, index)
	if err != nil {
		return err
	}
	if !res.Removed {
		fmt.Printf("No track at #%d\n", index)
		return nil
	}
	fmt.Printf("Removed (%d tracks)\n", res.Length)
	return nil
}

func printSnapshot(s playback.Snapshot) {
	fmt.Printf("  State: %s\n", formatState(s))
	fmt.Printf("  Source: %s\n", s.SourceKey)
	fmt.Printf("  Shuffle: %v  Repeat: %s\n", s.Shuffle, s.RepeatMode)
	if s.Cursor >= 0 && s.Cursor < len(s.Queue) {
		fmt.Printf("  Track: %s\n", formatTrack(s.Queue[s.Cursor]))
		fmt.Printf("  Position: %s / %s\n", formatSeconds(s.Progress.Current), formatSeconds(s.Progress.Duration))
	}
	fmt.Printf("  Queue: %d tracks\n", len(s.Queue))
	for i, t := range s.Queue {
		marker := " "
		if i == s.Cursor {
			marker = ">"
		}
		fmt.Printf("   %s %3d. %s\n", marker, i, formatTrack(t))
	}
}

func formatState(s playback.Snapshot) string {
	if s.Failed {
		return "⚠️  Failed"
	}
	switch s.State {
	case playback.StatePlaying.String():
		return "▶️  Playing"
	case playback.StatePaused.String():
		return "⏸  Paused"
	case playback.StateLoading.String():
		return "⏳ Loading"
	default:
		return "⏹  " + s.State
	}
}

func formatTrack(t track.Track) string {
	s := t.ID
	if t.Title != "" {
		s = fmt.Sprintf("%s - %s (%s)", t.ArtistName, t.Title, t.ID)
	}
	if c, ok := t.Container(); ok {
		s += " [" + c.Key() + "]"
	}
	return s
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
