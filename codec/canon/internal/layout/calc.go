// Package layout computes Canonical ABI sizes, alignments and offsets of
// WIT types in linear memory.
package layout

import (
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/ldubos/facet/codec/canon/internal/abi"
)

// Info is the memory layout of one type.
type Info struct {
	Offsets []uint32 // record fields and tuple elements
	Size    uint32
	Align   uint32
	Disc    uint32 // discriminant size of options, variants and enums
	Payload uint32 // payload offset of options and variants
}

// Calculator caches layouts of type definitions. It is safe for concurrent
// use.
type Calculator struct {
	cache map[*wit.TypeDef]Info
	mu    sync.Mutex
}

func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[*wit.TypeDef]Info),
	}
}

func (c *Calculator) Calculate(t wit.Type) Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calculate(t)
}

func (c *Calculator) calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		return c.typeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func (c *Calculator) typeDef(t *wit.TypeDef) Info {
	if cached, ok := c.cache[t]; ok {
		return cached
	}

	var info Info
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		info = c.sequential(types)
	case *wit.Tuple:
		info = c.sequential(kind.Types)
	case *wit.Variant:
		payloads := make([]wit.Type, 0, len(kind.Cases))
		for _, cs := range kind.Cases {
			if cs.Type != nil {
				payloads = append(payloads, cs.Type)
			}
		}
		info = c.tagged(abi.DiscriminantSize(len(kind.Cases)), payloads)
	case *wit.Enum:
		size := abi.DiscriminantSize(len(kind.Cases))
		info = Info{Size: size, Align: size, Disc: size}
	case *wit.Option:
		info = c.tagged(1, []wit.Type{kind.Type})
	case *wit.List:
		info = Info{Size: 8, Align: 4}
	case wit.Type:
		info = c.calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}

	c.cache[t] = info
	return info
}

// sequential lays types out one after another, each at its own alignment.
func (c *Calculator) sequential(types []wit.Type) Info {
	if len(types) == 0 {
		return Info{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(types))
	maxAlign := uint32(1)
	offset := uint32(0)

	for i, typ := range types {
		l := c.calculate(typ)
		offset = abi.AlignTo(offset, l.Align)
		offsets[i] = offset
		if l.Align > maxAlign {
			maxAlign = l.Align
		}
		offset += l.Size
	}

	return Info{
		Offsets: offsets,
		Size:    abi.AlignTo(offset, maxAlign),
		Align:   maxAlign,
	}
}

// tagged lays out a discriminant followed by the largest payload.
func (c *Calculator) tagged(disc uint32, payloads []wit.Type) Info {
	maxAlign := disc
	maxSize := uint32(0)
	for _, typ := range payloads {
		l := c.calculate(typ)
		if l.Align > maxAlign {
			maxAlign = l.Align
		}
		if l.Size > maxSize {
			maxSize = l.Size
		}
	}

	payload := abi.AlignTo(disc, maxAlign)
	return Info{
		Size:    abi.AlignTo(payload+maxSize, maxAlign),
		Align:   maxAlign,
		Disc:    disc,
		Payload: payload,
	}
}
