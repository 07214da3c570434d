package bgpapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets GobgpApiClient talk to the speaker over plain gRPC without
// a protoc-generated marshaller: the speaker side accepts this content
// subtype instead of the default proto wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
