// Package codec centralizes metadata and dump-record encoding.
//
// Dump files are self-describing: they store the codec name in their header,
// and the reader selects the codec by that name. Changing the default codec
// therefore never breaks previously written dumps.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}
