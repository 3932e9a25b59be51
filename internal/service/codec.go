// Package service exposes the storage service and ledger engine as Connect
// RPC handlers.
//
// Messages are plain Go structs carried as JSON. Every handler and client
// must be built with WithJSON so both ends agree on the codec.
package service

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec replaces Connect's protobuf-only JSON codec with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// WithJSON registers the JSON codec on a handler or client.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
