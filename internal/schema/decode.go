package schema

import (
	"github.com/go-viper/mapstructure/v2"
)

// Decode copies raw descriptor config into target, a pointer to a config
// struct. Keys that match no field are rejected.
func Decode(prefix string, raw map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return ValidationErrors{{Field: prefix, Message: err.Error()}}
	}
	return nil
}
