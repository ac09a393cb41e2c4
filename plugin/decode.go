package plugin

import "github.com/mitchellh/mapstructure"

// DecodeOptions decodes a plugin stanza's options map (as produced by the
// config loader from everything but the tag/type keys) into a
// plugin-specific Args struct using mapstructure tags, the same per-plugin
// "Args" convention used throughout vdns's plugin packages.
func DecodeOptions(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	return dec.Decode(opts)
}
