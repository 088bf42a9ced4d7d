package remote

import (
	"github.com/fxamacker/cbor/v2"

	"parley/internal/provider"
)

// Operations carried in a Request.
const (
	OpInfo     = "info"
	OpTokenize = "tokenize"
	OpPiece    = "piece"
	OpEval     = "eval"
	OpSnapshot = "snapshot"
	OpRestore  = "restore"
)

// Request is one binary WebSocket frame sent to the evaluator.
type Request struct {
	ID     uint64           `cbor:"1,keyasint"`
	Op     string           `cbor:"2,keyasint"`
	Text   string           `cbor:"3,keyasint,omitempty"`
	AddBOS bool             `cbor:"4,keyasint,omitempty"`
	Token  provider.Token   `cbor:"5,keyasint,omitempty"`
	Tokens []provider.Token `cbor:"6,keyasint,omitempty"`
	NPast  int              `cbor:"7,keyasint,omitempty"`
	State  []byte           `cbor:"8,keyasint,omitempty"`
}

// Response answers the Request with the same ID. Exactly one of the payload
// fields or Error is meaningful.
type Response struct {
	ID     uint64                  `cbor:"1,keyasint"`
	Info   *provider.ModelInfo     `cbor:"2,keyasint,omitempty"`
	Tokens []provider.Token        `cbor:"3,keyasint,omitempty"`
	Piece  string                  `cbor:"4,keyasint,omitempty"`
	Logits []float32               `cbor:"5,keyasint,omitempty"`
	State  []byte                  `cbor:"6,keyasint,omitempty"`
	Error  *provider.ProviderError `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	// State blobs and logits can be large; the defaults cap at 128k elements.
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 24,
		MaxMapPairs:      1 << 10,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
