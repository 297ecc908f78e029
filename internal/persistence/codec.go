package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns snapshots into durable blobs and back.
type Codec interface {
	Name() string
	Encode(Snapshot) ([]byte, error)
	Decode([]byte) (Snapshot, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return newCBORCodec()
	}
	return nil, fmt.Errorf("unknown snapshot codec %q", name)
}

// JSONCodec writes indented JSON so the snapshot file stays readable.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (JSONCodec) Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode json snapshot: %w", err)
	}
	s.normalize()
	return s, nil
}

// CBORCodec uses core deterministic encoding; identical state yields identical bytes.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() (CBORCodec, error) {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	enc, err := encOptions.EncMode()
	if err != nil {
		return CBORCodec{}, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBORCodec{}, fmt.Errorf("cbor decoder: %w", err)
	}
	return CBORCodec{enc: enc, dec: dec}, nil
}

func (CBORCodec) Name() string { return "cbor" }

func (c CBORCodec) Encode(s Snapshot) ([]byte, error) {
	return c.enc.Marshal(s)
}

func (c CBORCodec) Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := c.dec.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode cbor snapshot: %w", err)
	}
	s.normalize()
	return s, nil
}
