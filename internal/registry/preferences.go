package registry

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/strix/internal/core"
)

// DecodePreferences fills out (a pointer to a protocol's preference struct) from
// the raw map read from configuration. Unknown keys are rejected.
func DecodePreferences(in map[string]any, out any) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
