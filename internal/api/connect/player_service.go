package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/beatdeck/internal/app/library"
	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/app/session"
	"github.com/osa030/beatdeck/internal/app/transport"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// Engine is the session surface the services drive.
type Engine interface {
	Dispatch(ctx context.Context, cmd transport.Command) error
	PlayContainer(ctx context.Context, c track.Container, index int) error
	PlayPlaylist(ctx context.Context, index int) error
	Snapshot() playback.Snapshot
	Subscribe(buffer int) *transport.Subscription
	Unsubscribe(id string)
	Library() *library.Library
	Done() <-chan struct{}
}

var _ Engine = (*session.Manager)(nil)

// DispatchRequest is the Dispatch payload.
type DispatchRequest = transport.Envelope

// DispatchResponse is the Dispatch result. Snapshot is set for get-state.
type DispatchResponse struct {
	Accepted bool               `json:"accepted"`
	Snapshot *playback.Snapshot `json:"snapshot,omitempty"`
}

// PlayContainerRequest is the PlayContainer payload.
type PlayContainerRequest struct {
	Container string `json:"container"` // "pack:42" / "kit:7"
	Index     int    `json:"index"`
}

// WatchMessage is one streamed snapshot.
type WatchMessage struct {
	SequenceNo uint64            `json:"sequenceNo"`
	Event      string            `json:"event"`
	Snapshot   playback.Snapshot `json:"snapshot"`
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	engine Engine
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(engine Engine) *PlayerService {
	return &PlayerService{engine: engine}
}

// NewPlayerServiceHandler returns the mount path and handler for svc.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(PlayerDispatchProcedure, connect.NewUnaryHandler(PlayerDispatchProcedure, svc.Dispatch, opts...))
	mux.Handle(PlayerGetStateProcedure, connect.NewUnaryHandler(PlayerGetStateProcedure, svc.GetState, opts...))
	mux.Handle(PlayerPlayContainerProcedure, connect.NewUnaryHandler(PlayerPlayContainerProcedure, svc.PlayContainer, opts...))
	mux.Handle(PlayerWatchProcedure, connect.NewServerStreamHandler(PlayerWatchProcedure, svc.Watch, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// Dispatch decodes a wire command and puts it on the bus.
func (s *PlayerService) Dispatch(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var env DispatchRequest
	if err := DecodeMessage(req.Msg, &env); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	cmd, err := transport.Decode(env.Event, env.Payload)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.engine.Dispatch(ctx, cmd); err != nil {
		return nil, toConnectError(err)
	}

	resp := DispatchResponse{Accepted: true}
	if _, ok := cmd.(transport.GetState); ok {
		snap := s.engine.Snapshot()
		resp.Snapshot = &snap
	}
	return respond(resp)
}

// GetState returns the current snapshot.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return respond(s.engine.Snapshot())
}

// PlayContainer lists a pack or kit and plays it from the given index.
func (s *PlayerService) PlayContainer(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in PlayContainerRequest
	if err := DecodeMessage(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	c, err := track.ParseContainer(in.Container)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.engine.PlayContainer(ctx, c, in.Index); err != nil {
		return nil, toConnectError(err)
	}
	return respond(DispatchResponse{Accepted: true})
}

// Watch streams snapshots, starting with the current one, until the client
// goes away or the session ends.
func (s *PlayerService) Watch(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	sub := s.engine.Subscribe(0)
	defer s.engine.Unsubscribe(sub.ID)

	// The bus replays its latest snapshot on subscribe; fall back to the
	// controller when nothing has been published yet.
	select {
	case n, ok := <-sub.C:
		if !ok {
			return nil
		}
		if err := send(stream, n); err != nil {
			return err
		}
	default:
		initial := transport.Notification{Event: transport.EventStateSnapshot, Snapshot: s.engine.Snapshot()}
		if err := send(stream, initial); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.engine.Done():
			return nil
		case n, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := send(stream, n); err != nil {
				zlog.Debug().Msgf("api: watch stream closed: subscription=%s err=%v", sub.ID, err)
				return err
			}
		}
	}
}

func send(stream *connect.ServerStream[structpb.Struct], n transport.Notification) error {
	msg, err := EncodeMessage(WatchMessage{SequenceNo: n.SequenceNo, Event: n.Event, Snapshot: n.Snapshot})
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	return stream.Send(msg)
}

func respond(v any) (*connect.Response[structpb.Struct], error) {
	msg, err := EncodeMessage(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// toConnectError maps engine errors onto RPC codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotRunning), errors.Is(err, transport.ErrBusClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, session.ErrEmptyContainer), errors.Is(err, preview.ErrNoPreview):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, playback.ErrEmptyQueue):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, transport.ErrUnknownCommand):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
