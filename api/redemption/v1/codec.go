package redemptionv1

import (
	"encoding/json"
)

// Codec serializes the plain message structs of this package as JSON. It
// registers under the "json" name so clients send application/json.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
