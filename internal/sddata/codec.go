package sddata

import (
	"encoding/json"

	"sdengine/internal/sdlerrors"
)

// Format enumerates the serialization formats the interactive surface can
// open/save a project as (spec §6.1, §6.2).
type Format string

const (
	FormatProtobuf   Format = "protobuf"
	FormatNativeJSON Format = "nativeJSON"
	FormatSDAIJSON   Format = "sdaiJSON"
)

// Open parses data in the given format into a Project.
//
// Protobuf is not implemented: no protobuf library appears anywhere in the
// example corpus this engine was grounded on, and fabricating a hand-rolled
// wire codec behind the Format enum would mean shipping an unvetted,
// ungrounded binary format. Native JSON and SDAI JSON, the formats the
// corpus's own JSON handling patterns cover, are fully implemented.
func Open(format Format, data []byte) (*Project, error) {
	switch format {
	case FormatNativeJSON:
		return UnmarshalNativeJSON(data)
	case FormatSDAIJSON:
		return UnmarshalSDAIJSON(data)
	case FormatProtobuf:
		return nil, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric, "protobuf format not implemented")
	default:
		return nil, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric, "unknown format %q", format)
	}
}

// Save serializes p in the given format.
func Save(format Format, p *Project) ([]byte, error) {
	switch format {
	case FormatNativeJSON:
		return MarshalNativeJSON(p)
	case FormatSDAIJSON:
		return json.MarshalIndent(ToSDAI(p), "", "  ")
	case FormatProtobuf:
		return nil, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric, "protobuf format not implemented")
	default:
		return nil, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeGeneric, "unknown format %q", format)
	}
}
