// Package tuple implements the schema-driven row codec.
//
// Row binary format, little-endian, laid out in column order:
//
//	[null bitmap: ceil(N/8) bytes, bit i (LSB-first) set ⇔ column i NULL]
//	[payloads of the non-null columns]:
//	    Int32   → 4 bytes
//	    UInt32  → 4 bytes
//	    Float64 → 8 bytes
//	    Bool    → 1 byte (0x00 or 0x01)
//	    VarChar → u16 length + UTF-8 bytes
//	    Blob    → u16 length + raw bytes
//
// A null column contributes no payload bytes at all.
//
// The codec is pure: it holds no state and touches nothing but its inputs.
package tuple

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"pagedb/pkg/catalog/schema"
	"pagedb/pkg/types"
)

var (
	// ErrSchemaMismatch is returned when the value list does not line up
	// with the schema in arity or type.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidValue is returned for values the schema cannot accept.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNullNotAllowed is the ErrInvalidValue case of a NULL arriving in
	// a non-nullable column.
	ErrNullNotAllowed = fmt.Errorf("%w: null in non-nullable column", ErrInvalidValue)

	// ErrOverflow is returned when a variable-width payload exceeds the
	// column's declared max length.
	ErrOverflow = errors.New("value exceeds column max length")

	// ErrTruncated is returned by Decode when the row bytes end before
	// the schema says they should.
	ErrTruncated = errors.New("truncated row")

	// ErrInvalidUTF8 is returned by Decode for VarChar payloads that are
	// not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8 in varchar")
)

// Encode serializes one row of fields against the schema. A nil Field
// encodes as NULL.
func Encode(s *schema.Schema, fields []types.Field) ([]byte, error) {
	if len(fields) != s.NumColumns() {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrSchemaMismatch, len(fields), s.NumColumns())
	}

	var buf bytes.Buffer
	bitmap := make([]byte, s.NullBitmapSize())
	for i, f := range fields {
		if f == nil {
			if !s.Columns[i].Nullable {
				return nil, fmt.Errorf("%w: column %q", ErrNullNotAllowed, s.Columns[i].Name)
			}
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	buf.Write(bitmap)

	for i, f := range fields {
		if f == nil {
			continue
		}
		col := s.Columns[i]
		if f.Type() != col.Type {
			return nil, fmt.Errorf("%w: column %q expects %s, got %s",
				ErrSchemaMismatch, col.Name, col.Type, f.Type())
		}

		switch v := f.(type) {
		case *types.Int32Field:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(v.Value))
			buf.Write(b[:])
		case *types.UInt32Field:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], v.Value)
			buf.Write(b[:])
		case *types.Float64Field:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Value))
			buf.Write(b[:])
		case *types.BoolField:
			if v.Value {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case *types.VarCharField:
			if err := writeVar(&buf, col, []byte(v.Value)); err != nil {
				return nil, err
			}
		case *types.BlobField:
			if err := writeVar(&buf, col, v.Value); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: column %q has unsupported field %T", ErrInvalidValue, col.Name, f)
		}
	}

	return buf.Bytes(), nil
}

func writeVar(buf *bytes.Buffer, col schema.Column, payload []byte) error {
	if len(payload) > int(col.MaxLen) {
		return fmt.Errorf("%w: column %q holds %d bytes, max %d",
			ErrOverflow, col.Name, len(payload), col.MaxLen)
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(payload)))
	buf.Write(b[:])
	buf.Write(payload)
	return nil
}

// Decode parses row bytes back into fields. NULL columns come back as nil.
func Decode(s *schema.Schema, data []byte) ([]types.Field, error) {
	bmSize := s.NullBitmapSize()
	if len(data) < bmSize {
		return nil, fmt.Errorf("%w: %d bytes, bitmap needs %d", ErrTruncated, len(data), bmSize)
	}
	bitmap := data[:bmSize]
	offset := bmSize

	fields := make([]types.Field, s.NumColumns())
	for i, col := range s.Columns {
		if bitmap[i/8]>>(i%8)&1 == 1 {
			continue
		}

		switch col.Type {
		case types.Int32Type:
			if offset+4 > len(data) {
				return nil, truncated(col.Name, len(data))
			}
			fields[i] = types.NewInt32Field(int32(binary.LittleEndian.Uint32(data[offset:])))
			offset += 4
		case types.UInt32Type:
			if offset+4 > len(data) {
				return nil, truncated(col.Name, len(data))
			}
			fields[i] = types.NewUInt32Field(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
		case types.Float64Type:
			if offset+8 > len(data) {
				return nil, truncated(col.Name, len(data))
			}
			fields[i] = types.NewFloat64Field(math.Float64frombits(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		case types.BoolType:
			if offset+1 > len(data) {
				return nil, truncated(col.Name, len(data))
			}
			fields[i] = types.NewBoolField(data[offset] != 0)
			offset++
		case types.VarCharType, types.BlobType:
			if offset+2 > len(data) {
				return nil, truncated(col.Name, len(data))
			}
			length := int(binary.LittleEndian.Uint16(data[offset:]))
			offset += 2
			if offset+length > len(data) {
				return nil, truncated(col.Name, len(data))
			}
			payload := data[offset : offset+length]
			offset += length

			if col.Type == types.VarCharType {
				if !utf8.Valid(payload) {
					return nil, fmt.Errorf("%w: column %q", ErrInvalidUTF8, col.Name)
				}
				fields[i] = types.NewVarCharField(string(payload))
			} else {
				fields[i] = types.NewBlobField(bytes.Clone(payload))
			}
		default:
			return nil, fmt.Errorf("%w: column %q has unknown type %d", ErrSchemaMismatch, col.Name, col.Type)
		}
	}

	return fields, nil
}

func truncated(column string, have int) error {
	return fmt.Errorf("%w: row of %d bytes ends inside column %q", ErrTruncated, have, column)
}
