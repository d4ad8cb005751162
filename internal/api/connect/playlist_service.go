package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/beatdeck/internal/domain/track"
)

// PlaylistTracks carries a list of tracks, used by List and Add.
type PlaylistTracks struct {
	Tracks []track.Track `json:"tracks"`
}

// PlaylistIndex selects a playlist position, used by Remove and Play.
type PlaylistIndex struct {
	Index int `json:"index"`
}

// PlaylistResult reports the outcome of a mutation.
type PlaylistResult struct {
	Added   int  `json:"added,omitempty"`
	Removed bool `json:"removed,omitempty"`
	Length  int  `json:"length"`
}

// PlaylistService implements the PlaylistService RPC.
type PlaylistService struct {
	engine Engine
}

// NewPlaylistService creates a new PlaylistService.
func NewPlaylistService(engine Engine) *PlaylistService {
	return &PlaylistService{engine: engine}
}

// NewPlaylistServiceHandler returns the mount path and handler for svc.
func NewPlaylistServiceHandler(svc *PlaylistService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(PlaylistListProcedure, connect.NewUnaryHandler(PlaylistListProcedure, svc.List, opts...))
	mux.Handle(PlaylistAddProcedure, connect.NewUnaryHandler(PlaylistAddProcedure, svc.Add, opts...))
	mux.Handle(PlaylistRemoveProcedure, connect.NewUnaryHandler(PlaylistRemoveProcedure, svc.Remove, opts...))
	mux.Handle(PlaylistClearProcedure, connect.NewUnaryHandler(PlaylistClearProcedure, svc.Clear, opts...))
	mux.Handle(PlaylistPlayProcedure, connect.NewUnaryHandler(PlaylistPlayProcedure, svc.Play, opts...))
	return "/" + PlaylistServiceName + "/", mux
}

// List returns the stored playlist.
func (s *PlaylistService) List(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return respond(PlaylistTracks{Tracks: s.engine.Library().Tracks()})
}

// Add appends tracks that are not already in the playlist.
func (s *PlaylistService) Add(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in PlaylistTracks
	if err := DecodeMessage(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	for _, t := range in.Tracks {
		if t.ID == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track id is required"))
		}
		if err := t.Source.Validate(); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	lib := s.engine.Library()
	added, err := lib.Add(in.Tracks...)
	if err != nil {
		zlog.Error().Msgf("api: failed to add to playlist: %v", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return respond(PlaylistResult{Added: added, Length: lib.Len()})
}

// Remove deletes the track at the given index. Out-of-range is not an error.
func (s *PlaylistService) Remove(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in PlaylistIndex
	if err := DecodeMessage(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	lib := s.engine.Library()
	removed, err := lib.RemoveAt(in.Index)
	if err != nil {
		zlog.Error().Msgf("api: failed to remove from playlist: %v", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return respond(PlaylistResult{Removed: removed, Length: lib.Len()})
}

// Clear empties the playlist.
func (s *PlaylistService) Clear(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if err := s.engine.Library().Clear(); err != nil {
		zlog.Error().Msgf("api: failed to clear playlist: %v", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return respond(PlaylistResult{})
}

// Play replaces the queue with the playlist.
func (s *PlaylistService) Play(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in PlaylistIndex
	if err := DecodeMessage(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.engine.PlayPlaylist(ctx, in.Index); err != nil {
		return nil, toConnectError(err)
	}
	return respond(DispatchResponse{Accepted: true})
}
