package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"

	"github.com/fxamacker/cbor/v2"
)

// Media types understood by the endpoint
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Codec encodes and decodes envelopes
type Codec interface {
	ContentType() string
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (jsonCodec) Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func (cborCodec) ContentType() string { return ContentTypeCBOR }

func (c cborCodec) Encode(w io.Writer, v any) error {
	return c.enc.NewEncoder(w).Encode(v)
}

func (c cborCodec) Decode(r io.Reader, v any) error {
	return c.dec.NewDecoder(r).Decode(v)
}

var (
	// JSON is the default codec
	JSON Codec = jsonCodec{}
	// CBOR uses core deterministic encoding, so map keys are sorted
	CBOR Codec = newCBORCodec()
)

func newCBORCodec() Codec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder options: %v", err))
	}
	dec, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder options: %v", err))
	}
	return cborCodec{enc: enc, dec: dec}
}

// ForContentType picks the codec for a Content-Type or Accept value. Anything
// that is not CBOR is treated as JSON.
func ForContentType(value string) Codec {
	if value == "" {
		return JSON
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err == nil && mediaType == ContentTypeCBOR {
		return CBOR
	}
	return JSON
}

// Normalize turns decoded CBOR maps with non-string keys into string-keyed
// maps so the value can be rendered as JSON
func Normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	}
	return v
}
