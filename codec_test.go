package savex

import (
	"bytes"
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/savex/internal/stream"
)

type fruit struct {
	Saveable
	Name string `savex:""`
}

type color int16

type basket struct {
	Saveable
	Owner   string          `savex:""`
	Count   int32           `savex:""`
	Fruits  []fruit         `savex:""`
	Weights []float64       `savex:""`
	Price   decimal.Decimal `savex:""`
	Fresh   bool            `savex:""`
	Grade   Char            `savex:""`
	Colors  []color         `savex:""`
	Tags    []string        `savex:""`
	Best    *fruit          `savex:""`
	Notes   string
}

type node struct {
	Value    int32  `savex:""`
	Children []node `savex:""`
}

var ignoreBookkeeping = cmpopts.IgnoreTypes(Saveable{})

func le32(n int32) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}

func le32u(n uint32) []byte {
	return le32(int32(n))
}

func le64(n uint64) []byte {
	return concat(le32u(uint32(n)), le32u(uint32(n>>32)))
}

// decimalBytes is the 16-byte wire form of a decimal with the given 32-bit
// coefficient and scale.
func decimalBytes(coef uint32, scale uint32, negative bool) []byte {
	flags := scale << 16
	if negative {
		flags |= 1 << 31
	}
	return concat(le32u(coef), le32(0), le32(0), le32u(flags))
}

var equateDecimals = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestFruitArrayLayout(t *testing.T) {
	fruits := []fruit{{Name: "Apple"}, {Name: "Banana"}, {Name: "Mango"}}

	data, err := Dump(fruits)
	require.NoError(t, err)

	want := concat(
		le32(3),
		le32(5), []byte("Apple"),
		le32(6), []byte("Banana"),
		le32(5), []byte("Mango"),
	)
	assert.Equal(t, want, data)

	got, err := UndumpArray[fruit](data)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Apple", got[0].Name)
	assert.Equal(t, "Banana", got[1].Name)
	assert.Equal(t, "Mango", got[2].Name)
}

func TestStringLengthIsByteCount(t *testing.T) {
	data, err := Dump(&fruit{Name: "café"})
	require.NoError(t, err)

	assert.Equal(t, concat(le32(5), []byte("café")), data)

	got, err := Undump[fruit](data)
	require.NoError(t, err)
	assert.Equal(t, "café", got.Name)
}

func TestBasketRoundTrip(t *testing.T) {
	in := &basket{
		Owner:   "Zoë",
		Count:   -42,
		Fruits:  []fruit{{Name: "Apple"}, {Name: "Kiwi"}},
		Weights: []float64{0.5, 1.25, -3},
		Price:   decimal.RequireFromString("-12.345"),
		Fresh:   true,
		Grade:   'A',
		Colors:  []color{1, -2, 300},
		Tags:    []string{"", "organic"},
		Best:    &fruit{Name: "Mango"},
		Notes:   "not serialized",
	}

	data, err := Dump(in)
	require.NoError(t, err)

	out, err := Undump[basket](data)
	require.NoError(t, err)

	want := *in
	want.Notes = ""
	if diff := cmp.Diff(want, *out, ignoreBookkeeping); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyArraysDecodeEmpty(t *testing.T) {
	data, err := Dump(&basket{Best: &fruit{}})
	require.NoError(t, err)

	out, err := Undump[basket](data)
	require.NoError(t, err)
	assert.Empty(t, out.Fruits)
	assert.Empty(t, out.Weights)
	assert.Empty(t, out.Tags)
	assert.True(t, out.Price.IsZero())
}

func TestRecursiveComposite(t *testing.T) {
	tree := &node{
		Value: 1,
		Children: []node{
			{Value: 2},
			{Value: 3, Children: []node{{Value: 4}}},
		},
	}

	data, err := Dump(tree)
	require.NoError(t, err)

	out, err := Undump[node](data)
	require.NoError(t, err)
	if diff := cmp.Diff(tree, out, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPointerElementArray(t *testing.T) {
	in := []*fruit{{Name: "Fig"}, {Name: "Lime"}}

	data, err := Dump(in)
	require.NoError(t, err)

	out, err := UndumpArray[*fruit](data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Fig", out[0].Name)
	assert.Equal(t, "Lime", out[1].Name)

	_, err = Dump([]*fruit{{Name: "ok"}, nil})
	assert.ErrorIs(t, err, ErrNilPointer)
}

func TestScalarValues(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want []byte
	}{
		{name: "int8", v: int8(-2), want: []byte{0xFE}},
		{name: "int16", v: int16(0x0102), want: []byte{0x02, 0x01}},
		{name: "int32", v: int32(-2), want: le32(-2)},
		{name: "int64", v: int64(1) << 40, want: le64(1 << 40)},
		{name: "int travels as 64 bits", v: -1, want: bytes.Repeat([]byte{0xFF}, 8)},
		{name: "uint8", v: uint8(0xAB), want: []byte{0xAB}},
		{name: "uint16", v: uint16(0xBEEF), want: []byte{0xEF, 0xBE}},
		{name: "uint32", v: uint32(0xA0B0C0D0), want: []byte{0xD0, 0xC0, 0xB0, 0xA0}},
		{name: "uint64", v: uint64(0x0102030405060708), want: []byte{8, 7, 6, 5, 4, 3, 2, 1}},
		{name: "uint travels as 64 bits", v: uint(7), want: le64(7)},
		{name: "float32", v: float32(1), want: []byte{0x00, 0x00, 0x80, 0x3F}},
		{name: "float64", v: -2.5, want: le64(math.Float64bits(-2.5))},
		{name: "decimal", v: decimal.RequireFromString("3.14"), want: decimalBytes(314, 2, false)},
		{name: "negative decimal", v: decimal.RequireFromString("-1.5"), want: decimalBytes(15, 1, true)},
		{name: "bool", v: true, want: []byte{0x01}},
		{name: "false", v: false, want: []byte{0x00}},
		{name: "char", v: Char('x'), want: []byte{'x'}},
		{name: "string", v: "ab", want: concat(le32(2), []byte("ab"))},
		{name: "empty string", v: "", want: le32(0)},

		{name: "int8 array", v: []int8{-1, 2}, want: concat(le32(2), []byte{0xFF, 0x02})},
		{name: "int16 array", v: []int16{1, -1}, want: concat(le32(2), []byte{0x01, 0x00, 0xFF, 0xFF})},
		{name: "int32 array", v: []int32{1, -1}, want: concat(le32(2), le32(1), le32(-1))},
		{name: "int64 array", v: []int64{-1}, want: concat(le32(1), bytes.Repeat([]byte{0xFF}, 8))},
		{name: "int array", v: []int{3}, want: concat(le32(1), le64(3))},
		{name: "bytes", v: []byte{9, 8}, want: concat(le32(2), []byte{9, 8})},
		{name: "uint16 array", v: []uint16{0x0102}, want: concat(le32(1), []byte{0x02, 0x01})},
		{name: "uint32 array", v: []uint32{1, 2}, want: concat(le32(2), le32(1), le32(2))},
		{name: "uint64 array", v: []uint64{2}, want: concat(le32(1), le64(2))},
		{name: "uint array", v: []uint{5}, want: concat(le32(1), le64(5))},
		{name: "float32 array", v: []float32{1, -1}, want: concat(le32(2), []byte{0, 0, 0x80, 0x3F, 0, 0, 0x80, 0xBF})},
		{name: "float64 array", v: []float64{0.5}, want: concat(le32(1), le64(math.Float64bits(0.5)))},
		{name: "bool array", v: []bool{true, false}, want: concat(le32(2), []byte{1, 0})},
		{name: "decimal array", v: []decimal.Decimal{decimal.RequireFromString("3.14")}, want: concat(le32(1), decimalBytes(314, 2, false))},
		{name: "chars are raw bytes", v: []Char{'a', 0xE9}, want: concat(le32(2), []byte{'a', 0xE9})},
		{name: "string array", v: []string{"a", ""}, want: concat(le32(2), le32(1), []byte("a"), le32(0))},
		{name: "named element type", v: []color{7}, want: concat(le32(1), []byte{7, 0})},

		{name: "nil slice", v: []int64(nil), want: le32(0)},
		{name: "empty int8 array", v: []int8{}, want: le32(0)},
		{name: "empty int16 array", v: []int16{}, want: le32(0)},
		{name: "empty uint16 array", v: []uint16{}, want: le32(0)},
		{name: "empty uint32 array", v: []uint32{}, want: le32(0)},
		{name: "empty uint64 array", v: []uint64{}, want: le32(0)},
		{name: "empty uint array", v: []uint{}, want: le32(0)},
		{name: "empty float32 array", v: []float32{}, want: le32(0)},
		{name: "empty float64 array", v: []float64{}, want: le32(0)},
		{name: "empty bool array", v: []bool{}, want: le32(0)},
		{name: "empty decimal array", v: []decimal.Decimal{}, want: le32(0)},
		{name: "empty bytes", v: []byte{}, want: le32(0)},
		{name: "empty chars", v: []Char{}, want: le32(0)},
		{name: "empty string array", v: []string{}, want: le32(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Dump(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, data)

			r := NewReader(bytes.NewReader(data))
			got, err := r.ReadValue(reflect.TypeOf(tt.v))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.v, got, cmpopts.EquateEmpty(), equateDecimals); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}

			_, err = r.ReadUint8()
			assert.ErrorIs(t, err, ErrMalformedStream, "value must consume exactly its bytes")
		})
	}
}

func TestFloatSpecialValues(t *testing.T) {
	quiet := math.NaN()
	specials := []float64{quiet, math.Inf(1), math.Inf(-1), math.Copysign(0, -1)}

	for _, f := range specials {
		data, err := Dump(f)
		require.NoError(t, err)
		assert.Equal(t, le64(math.Float64bits(f)), data)

		got, err := Undump[float64](data)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(f), math.Float64bits(*got))

		data, err = Dump(float32(f))
		require.NoError(t, err)
		got32, err := Undump[float32](data)
		require.NoError(t, err)
		assert.Equal(t, math.Float32bits(float32(f)), math.Float32bits(*got32))
	}

	data, err := Dump(specials)
	require.NoError(t, err)
	r := NewReader(bytes.NewReader(data))
	got, err := r.ReadFloat64Array()
	require.NoError(t, err)
	require.Len(t, got, len(specials))
	for i := range specials {
		assert.Equal(t, math.Float64bits(specials[i]), math.Float64bits(got[i]))
	}

	data, err = Dump([]float32{float32(quiet), float32(math.Inf(-1))})
	require.NoError(t, err)
	r = NewReader(bytes.NewReader(data))
	got32, err := r.ReadFloat32Array()
	require.NoError(t, err)
	require.Len(t, got32, 2)
	assert.True(t, math.IsNaN(float64(got32[0])))
	assert.True(t, math.IsInf(float64(got32[1]), -1))
}

func TestWriteAsReadAs(t *testing.T) {
	buf := stream.NewBuffer(nil)
	w := NewWriter(buf)
	require.NoError(t, WriteAs(w, []string{"a", "bc"}))
	require.NoError(t, WriteAs(w, decimal.RequireFromString("3.14")))

	_, err := buf.Seek(0, 0)
	require.NoError(t, err)
	r := NewReader(buf)

	strs, err := ReadAs[[]string](r)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bc"}, strs)

	d, err := ReadAs[decimal.Decimal](r)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("3.14")))
}

func TestUnsupportedShapeWritesNothing(t *testing.T) {
	var buf bytes.Buffer

	err := Save(&buf, [][]int32{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrUnsupportedShape)
	assert.True(t, IsTypeError(err))
	assert.Zero(t, buf.Len())

	type grid struct {
		Cells [][]string `savex:""`
	}
	err = Save(&buf, &grid{Cells: [][]string{{"x"}}})
	assert.ErrorIs(t, err, ErrUnsupportedShape)
	assert.Zero(t, buf.Len())
}

type badCell struct {
	Grid [][]int32 `savex:""`
}

type cellHolder struct {
	Name  string  `savex:""`
	Inner badCell `savex:""`
}

type cellList struct {
	Name  string    `savex:""`
	Cells []badCell `savex:""`
}

func TestNestedUnsupportedShapeWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{name: "array of composites", v: []badCell{{}}},
		{name: "composite field after a sibling", v: &cellHolder{Name: "x"}},
		{name: "composite array field after a sibling", v: &cellList{Name: "x", Cells: []badCell{{}}}},
		{name: "pointer element array", v: []*badCell{{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Save(&buf, tt.v)
			require.ErrorIs(t, err, ErrUnsupportedShape)
			assert.Zero(t, buf.Len())
			assert.NotContains(t, err.Error(), "inspect")
		})
	}

	w := NewWriter(stream.NewBuffer(nil))
	err := w.WriteComposite(&cellHolder{Name: "x"})
	require.ErrorIs(t, err, ErrUnsupportedShape)
	pos, _ := w.Position()
	assert.Zero(t, pos)
}

func TestUnsupportedTypes(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{name: "map", v: map[string]int{"a": 1}},
		{name: "fixed array", v: [4]int32{}},
		{name: "channel", v: make(chan int)},
		{name: "pointer to scalar", v: new(int32)},
		{name: "slice of maps", v: []map[string]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Save(&buf, tt.v)
			assert.ErrorIs(t, err, ErrUnsupportedType)
			assert.Zero(t, buf.Len())
		})
	}

	err := Save(&bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrNilPointer)
}

func TestMalformedStreams(t *testing.T) {
	t.Run("negative array count", func(t *testing.T) {
		_, err := UndumpArray[fruit](le32(-1))
		assert.ErrorIs(t, err, ErrMalformedStream)
		assert.ErrorContains(t, err, "negative count -1")
	})

	t.Run("negative string length", func(t *testing.T) {
		_, err := Undump[fruit](le32(-5))
		assert.True(t, IsStreamError(err))
		assert.ErrorContains(t, err, "savex.fruit.Name")
	})

	t.Run("truncated composite", func(t *testing.T) {
		data, err := Dump(&basket{Owner: "Ann", Best: &fruit{Name: "Pear"}})
		require.NoError(t, err)

		for _, cut := range []int{0, 1, 5, len(data) - 1} {
			_, err := Undump[basket](data[:cut])
			assert.True(t, IsStreamError(err), "cut at %d: %v", cut, err)
		}
	})

	t.Run("forged huge count", func(t *testing.T) {
		data := concat(le32(0x7FFFFFFF), []byte{1, 2, 3})
		_, err := ReadAs[[]byte](NewReader(bytes.NewReader(data)))
		assert.ErrorIs(t, err, ErrMalformedStream)

		_, err = ReadAs[[]int64](NewReader(bytes.NewReader(data)))
		assert.ErrorIs(t, err, ErrMalformedStream)

		_, err = UndumpArray[fruit](data)
		assert.ErrorIs(t, err, ErrMalformedStream)
	})

	t.Run("bad decimal flags", func(t *testing.T) {
		raw := make([]byte, 16)
		raw[12] = 0x01 // reserved bits
		_, err := ReadAs[decimal.Decimal](NewReader(bytes.NewReader(raw)))
		assert.ErrorIs(t, err, ErrMalformedStream)
	})
}

func TestDecimalOutOfRange(t *testing.T) {
	huge := decimal.New(1, 40)
	_, err := Dump(huge)
	assert.ErrorIs(t, err, ErrValueOutOfRange)
	assert.True(t, IsValidationError(err))
}

func TestNilCompositeField(t *testing.T) {
	_, err := Dump(&basket{})
	assert.ErrorIs(t, err, ErrNilPointer)
	assert.ErrorContains(t, err, "savex.basket.Best")
}
