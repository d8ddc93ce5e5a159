package canon

import "github.com/ldubos/facet/codec/canon/internal/abi"

// Options bound the lists and strings lowering and lifting accept.
type Options struct {
	MaxListLength uint32 // elements per list, including map entries and bytes
	MaxStringSize uint32 // bytes per string
}

func DefaultOptions() Options {
	return Options{
		MaxListLength: abi.MaxListLength,
		MaxStringSize: abi.MaxStringSize,
	}
}

func (o Options) maxListLength() uint32 {
	if o.MaxListLength == 0 {
		return abi.MaxListLength
	}
	return o.MaxListLength
}

func (o Options) maxStringSize() uint32 {
	if o.MaxStringSize == 0 {
		return abi.MaxStringSize
	}
	return o.MaxStringSize
}
