// Package connect provides Connect RPC service implementations.
package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and procedure names.
const (
	PlayerServiceName   = "beatdeck.v1.PlayerService"
	PlaylistServiceName = "beatdeck.v1.PlaylistService"

	PlayerDispatchProcedure      = "/" + PlayerServiceName + "/Dispatch"
	PlayerGetStateProcedure      = "/" + PlayerServiceName + "/GetState"
	PlayerPlayContainerProcedure = "/" + PlayerServiceName + "/PlayContainer"
	PlayerWatchProcedure         = "/" + PlayerServiceName + "/Watch"

	PlaylistListProcedure   = "/" + PlaylistServiceName + "/List"
	PlaylistAddProcedure    = "/" + PlaylistServiceName + "/Add"
	PlaylistRemoveProcedure = "/" + PlaylistServiceName + "/Remove"
	PlaylistClearProcedure  = "/" + PlaylistServiceName + "/Clear"
	PlaylistPlayProcedure   = "/" + PlaylistServiceName + "/Play"
)

// EncodeMessage converts a JSON-tagged value into a Struct payload.
func EncodeMessage(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrap(err, "failed to convert message")
	}
	return msg, nil
}

// DecodeMessage fills out from a Struct payload. A nil message leaves out
// untouched.
func DecodeMessage(msg *structpb.Struct, out any) error {
	if msg == nil {
		return nil
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to convert message")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
