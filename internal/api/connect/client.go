package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/transport"
	"github.com/osa030/beatdeck/internal/domain/track"
)

type structClient = connect.Client[structpb.Struct, structpb.Struct]

// Client calls PlayerService and PlaylistService on a beatdeck server.
type Client struct {
	dispatch      *structClient
	getState      *structClient
	playContainer *structClient
	watch         *structClient

	list   *structClient
	add    *structClient
	remove *structClient
	clear  *structClient
	play   *structClient
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	newClient := func(procedure string) *structClient {
		return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return &Client{
		dispatch:      newClient(PlayerDispatchProcedure),
		getState:      newClient(PlayerGetStateProcedure),
		playContainer: newClient(PlayerPlayContainerProcedure),
		watch:         newClient(PlayerWatchProcedure),
		list:          newClient(PlaylistListProcedure),
		add:           newClient(PlaylistAddProcedure),
		remove:        newClient(PlaylistRemoveProcedure),
		clear:         newClient(PlaylistClearProcedure),
		play:          newClient(PlaylistPlayProcedure),
	}
}

func call[T any](ctx context.Context, c *structClient, in any) (T, error) {
	var out T
	msg, err := EncodeMessage(in)
	if err != nil {
		return out, err
	}
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return out, err
	}
	if err := DecodeMessage(resp.Msg, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Dispatch sends cmd to the bus.
func (c *Client) Dispatch(ctx context.Context, cmd transport.Command) (DispatchResponse, error) {
	env, err := transport.Encode(cmd)
	if err != nil {
		return DispatchResponse{}, err
	}
	return call[DispatchResponse](ctx, c.dispatch, env)
}

// GetState returns the current snapshot.
func (c *Client) GetState(ctx context.Context) (playback.Snapshot, error) {
	return call[playback.Snapshot](ctx, c.getState, struct{}{})
}

// PlayContainer plays a pack or kit from index.
func (c *Client) PlayContainer(ctx context.Context, container track.Container, index int) error {
	_, err := call[DispatchResponse](ctx, c.playContainer, PlayContainerRequest{Container: container.Key(), Index: index})
	return err
}

// Watch calls fn for every streamed snapshot until ctx is done, the stream
// ends or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(WatchMessage) error) error {
	stream, err := c.watch.CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		var msg WatchMessage
		if err := DecodeMessage(stream.Msg(), &msg); err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && connect.CodeOf(err) != connect.CodeCanceled {
		return err
	}
	return nil
}

// ListPlaylist returns the stored playlist.
func (c *Client) ListPlaylist(ctx context.Context) ([]track.Track, error) {
	out, err := call[PlaylistTracks](ctx, c.list, struct{}{})
	return out.Tracks, err
}

// AddToPlaylist adds tracks to the playlist.
func (c *Client) AddToPlaylist(ctx context.Context, tracks ...track.Track) (PlaylistResult, error) {
	return call[PlaylistResult](ctx, c.add, PlaylistTracks{Tracks: tracks})
}

// RemoveFromPlaylist removes the track at index.
func (c *Client) RemoveFromPlaylist(ctx context.Context, index int) (PlaylistResult, error) {
	return call[PlaylistResult](ctx, c.remove, PlaylistIndex{Index: index})
}

// ClearPlaylist empties the playlist.
func (c *Client) ClearPlaylist(ctx context.Context) error {
	_, err := call[PlaylistResult](ctx, c.clear, struct{}{})
	return err
}

// PlayPlaylist plays the playlist from index.
func (c *Client) PlayPlaylist(ctx context.Context, index int) error {
	_, err := call[DispatchResponse](ctx, c.play, PlaylistIndex{Index: index})
	return err
}
