package domain

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// CapabilityFunc is the signature every capability implements.
// It receives the projected input and returns an output map, or an error.
// Returning a *Failure lets the node's policy classify the outcome; any other
// error is classified by the policy's Classify function (retryable by default).
//
// Capabilities must be safe for concurrent invocation and must honor ctx
// cancellation: when the run deadline fires, ctx is cancelled and the
// capability is expected to return promptly.
type CapabilityFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// DecodeInput decodes a capability input map into a typed struct.
// It uses weakly-typed decoding so that YAML/JSON sourced values ("5" vs 5)
// do not trip up hosts. Field mapping follows `mapstructure` tags.
func DecodeInput(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("building input decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decoding capability input: %w", err)
	}
	return nil
}
