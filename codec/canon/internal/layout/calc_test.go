package layout

import (
	"reflect"
	"testing"

	"go.bytecodealliance.org/wit"
)

func TestCalculatePrimitives(t *testing.T) {
	c := NewCalculator()

	tests := []struct {
		typ   wit.Type
		name  string
		size  uint32
		align uint32
	}{
		{wit.Bool{}, "bool", 1, 1},
		{wit.U8{}, "u8", 1, 1},
		{wit.S16{}, "s16", 2, 2},
		{wit.U32{}, "u32", 4, 4},
		{wit.F32{}, "f32", 4, 4},
		{wit.S64{}, "s64", 8, 8},
		{wit.F64{}, "f64", 8, 8},
		{wit.Char{}, "char", 4, 4},
		{wit.String{}, "string", 8, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := c.Calculate(tc.typ)
			if info.Size != tc.size || info.Align != tc.align {
				t.Errorf("got size %d align %d, want %d/%d", info.Size, info.Align, tc.size, tc.align)
			}
		})
	}
}

func TestCalculateRecord(t *testing.T) {
	c := NewCalculator()

	t.Run("empty", func(t *testing.T) {
		info := c.Calculate(&wit.TypeDef{Kind: &wit.Record{}})
		if info.Size != 0 || info.Align != 1 {
			t.Errorf("got %+v", info)
		}
	})

	t.Run("padding", func(t *testing.T) {
		record := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
			{Name: "a", Type: wit.U8{}},
			{Name: "b", Type: wit.U64{}},
			{Name: "c", Type: wit.U16{}},
		}}}
		info := c.Calculate(record)
		if info.Size != 24 || info.Align != 8 {
			t.Errorf("size %d align %d, want 24/8", info.Size, info.Align)
		}
		if !reflect.DeepEqual(info.Offsets, []uint32{0, 8, 16}) {
			t.Errorf("offsets = %v", info.Offsets)
		}
	})

	t.Run("cached", func(t *testing.T) {
		record := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{{Name: "s", Type: wit.String{}}}}}
		first := c.Calculate(record)
		record.Kind.(*wit.Record).Fields = nil
		if second := c.Calculate(record); second.Size != first.Size {
			t.Error("typedef layouts are cached")
		}
	})
}

func TestCalculateTuple(t *testing.T) {
	c := NewCalculator()
	info := c.Calculate(&wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U8{}, wit.String{}, wit.U8{}}}})
	if info.Size != 16 || info.Align != 4 {
		t.Errorf("size %d align %d, want 16/4", info.Size, info.Align)
	}
	if !reflect.DeepEqual(info.Offsets, []uint32{0, 4, 12}) {
		t.Errorf("offsets = %v", info.Offsets)
	}
}

func TestCalculateTagged(t *testing.T) {
	c := NewCalculator()

	tests := []struct {
		name    string
		typ     wit.Type
		size    uint32
		align   uint32
		payload uint32
	}{
		{"option u8", &wit.TypeDef{Kind: &wit.Option{Type: wit.U8{}}}, 2, 1, 1},
		{"option u32", &wit.TypeDef{Kind: &wit.Option{Type: wit.U32{}}}, 8, 4, 4},
		{"option string", &wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}, 12, 4, 4},
		{"variant", &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
			{Name: "none"},
			{Name: "small", Type: wit.U8{}},
			{Name: "big", Type: wit.U64{}},
		}}}, 16, 8, 8},
		{"enum", &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}, {Name: "b"}}}}, 1, 1, 0},
		{"list", &wit.TypeDef{Kind: &wit.List{Type: wit.U64{}}}, 8, 4, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := c.Calculate(tc.typ)
			if info.Size != tc.size || info.Align != tc.align || info.Payload != tc.payload {
				t.Errorf("got %+v, want size %d align %d payload %d", info, tc.size, tc.align, tc.payload)
			}
		})
	}
}

func TestCalculateLargeEnum(t *testing.T) {
	cases := make([]wit.EnumCase, 300)
	for i := range cases {
		cases[i] = wit.EnumCase{Name: "c"}
	}
	info := NewCalculator().Calculate(&wit.TypeDef{Kind: &wit.Enum{Cases: cases}})
	if info.Size != 2 || info.Disc != 2 {
		t.Errorf("got %+v, want a 2-byte discriminant", info)
	}
}
