package job

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs binds a job's argument map onto a typed struct.
// Handlers that prefer typed payloads over map lookups use this at the top:
//
//	var p SendEmailArgs
//	if err := job.DecodeArgs(args, &p); err != nil { ... }
func DecodeArgs(args map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build args decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}
	return nil
}
