package connect

import (
	"context"

	"connectrpc.com/connect"
)

const (
	// ControlTokenHeader is the header name for the control token.
	ControlTokenHeader = "X-Control-Token"
)

// tokenInterceptor rejects calls that do not carry the configured token.
// Both unary calls and server streams are checked.
type tokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates an interceptor that validates the control
// token. An empty token disables the check.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) authorized(token string) bool {
	return i.token == "" || token == i.token
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if !i.authorized(req.Header().Get(ControlTokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.authorized(conn.RequestHeader().Get(ControlTokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, conn)
	}
}

// NewTokenHeaderInterceptor attaches token to every outgoing call.
func NewTokenHeaderInterceptor(token string) connect.Interceptor {
	return &tokenHeaderInterceptor{token: token}
}

type tokenHeaderInterceptor struct {
	token string
}

func (i *tokenHeaderInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && i.token != "" {
			req.Header().Set(ControlTokenHeader, i.token)
		}
		return next(ctx, req)
	}
}

func (i *tokenHeaderInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.token != "" {
			conn.RequestHeader().Set(ControlTokenHeader, i.token)
		}
		return conn
	}
}

func (i *tokenHeaderInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
