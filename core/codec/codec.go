// Package codec provides the canonical binary encoding used for every
// persisted record and call parameter. All encoders share one deterministic
// CBOR mode so that equal values always produce byte-identical encodings,
// which the content-addressed state layer depends on.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: build encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: build decoder: %v", err))
	}
}

// Marshal encodes v using the canonical deterministic CBOR mode.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes canonical CBOR data into v. Indefinite-length items and
// duplicate map keys are rejected.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
