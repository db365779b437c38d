package pdbfmt

import (
	"reflect"
	"testing"
)

func TestDecodeInlineAnnotationsChangeCodeLength(t *testing.T) {
	// ChangeCodeOffset(3)=0x40, ChangeCodeLength(4)=0x40: bump to 0x1040,
	// then emit a 0x40-byte range there.
	annotations := []byte{annotationChangeCodeOffset, 0x40, annotationChangeCodeLength, 0x40}

	got := DecodeInlineAnnotations(annotations, 0x1000, 10)
	want := []InlineRange{{Offset: 0x1040, Length: 0x40, Line: 10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeInlineAnnotations() = %+v, want %+v", got, want)
	}
}

func TestDecodeInlineAnnotationsChangeCodeOffsetAndLineOffset(t *testing.T) {
	// Single operand 0x25: code delta = 0x25&0xf = 5 (low 4 bits), line
	// delta = decodeSigned(0x25>>4=2) = 1 (sign bit clear: 2>>1=1). Then
	// ChangeCodeLength(4)=0x10 emits the range at the bumped offset/line.
	annotations := []byte{
		annotationChangeCodeOffsetAndLineOffset, 0x25,
		annotationChangeCodeLength, 0x10,
	}

	got := DecodeInlineAnnotations(annotations, 0x2000, 100)
	want := []InlineRange{{Offset: 0x2005, Length: 0x10, Line: 101}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeInlineAnnotations() = %+v, want %+v", got, want)
	}
}

func TestDecodeInlineAnnotationsChangeCodeLengthAndCodeOffset(t *testing.T) {
	// Two operands in order length(0x20) then offset-delta(0x10): curOffset
	// advances by the delta first, the range is emitted there with the
	// given length, then curOffset advances past the emitted range.
	annotations := []byte{annotationChangeCodeLengthAndCodeOffset, 0x20, 0x10}

	got := DecodeInlineAnnotations(annotations, 0x3000, 5)
	want := []InlineRange{{Offset: 0x3010, Length: 0x20, Line: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeInlineAnnotations() = %+v, want %+v", got, want)
	}
	lastEnd := got[0].Offset + got[0].Length
	if lastEnd != 0x3030 {
		t.Errorf("range end = %#x, want %#x", lastEnd, 0x3030)
	}
}

func TestDecodeInlineAnnotationsChangeLineOffsetSignedDelta(t *testing.T) {
	// decodeSigned uses a sign-bit-low scheme (no zigzag -1 adjustment):
	// operand 3 (odd => negative) decodes to -(3>>1) = -1.
	annotations := []byte{
		annotationChangeLineOffset, 3,
		annotationChangeCodeLength, 8,
	}

	got := DecodeInlineAnnotations(annotations, 0x4000, 50)
	want := []InlineRange{{Offset: 0x4000, Length: 8, Line: 49}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeInlineAnnotations() = %+v, want %+v", got, want)
	}
}

func TestReadCompressedAnnotationWidths(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want uint32
	}{
		{"one byte", []byte{0x40}, 0x40},
		{"two bytes", []byte{0x81, 0x23}, 0x123},
		{"four bytes", []byte{0xC0, 0x01, 0x02, 0x03}, 0x00010203},
	}
	for _, c := range cases {
		i := 0
		got, ok := readCompressedAnnotation(c.data, &i)
		if !ok {
			t.Fatalf("%s: readCompressedAnnotation() ok = false", c.name)
		}
		if got != c.want {
			t.Errorf("%s: readCompressedAnnotation() = %#x, want %#x", c.name, got, c.want)
		}
		if i != len(c.data) {
			t.Errorf("%s: consumed %d bytes, want %d", c.name, i, len(c.data))
		}
	}
}

func TestDecodeSignedOperand(t *testing.T) {
	cases := []struct {
		v    uint32
		want int64
	}{
		{0, 0},
		{2, 1},
		{1, 0},
		{3, -1},
		{4, 2},
	}
	for _, c := range cases {
		if got := decodeSigned(c.v); got != c.want {
			t.Errorf("decodeSigned(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}
