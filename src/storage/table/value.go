package table

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/OneOfOne/xxhash"
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
)

type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeBoolean
	TypeInteger
	TypeVarchar
)

func (t TypeID) String() string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeVarchar:
		return "VARCHAR"
	default:
		return "INVALID"
	}
}

var ErrValueCorrupted = errors.New("corrupted value encoding")

const valueHashSeed = 0x9e3779b9

// Value is one typed cell. NULL is a state, not a type: a NULL value still
// carries the column's type id.
type Value struct {
	typ  TypeID
	null bool

	integer int64
	str     string
}

func NewInteger(v int64) Value {
	return Value{typ: TypeInteger, integer: v}
}

func NewBoolean(v bool) Value {
	res := Value{typ: TypeBoolean}
	if v {
		res.integer = 1
	}

	return res
}

func NewVarchar(v string) Value {
	return Value{typ: TypeVarchar, str: v}
}

func NewNull(typ TypeID) Value {
	assert.Assert(typ != TypeInvalid, "null of an invalid type")
	return Value{typ: typ, null: true}
}

func (v Value) Type() TypeID {
	return v.typ
}

func (v Value) IsNull() bool {
	return v.null
}

func (v Value) AsInt() int64 {
	assert.Assert(v.typ == TypeInteger && !v.null, "not a non-null integer")
	return v.integer
}

func (v Value) AsBool() bool {
	assert.Assert(v.typ == TypeBoolean && !v.null, "not a non-null boolean")
	return v.integer != 0
}

func (v Value) AsString() string {
	assert.Assert(v.typ == TypeVarchar && !v.null, "not a non-null varchar")
	return v.str
}

// Compare orders two non-null values of the same type: -1, 0 or 1.
func (v Value) Compare(other Value) int {
	assert.Assert(v.typ == other.typ, "comparing %s against %s", v.typ, other.typ)
	assert.Assert(!v.null && !other.null, "comparing NULL values")

	switch v.typ {
	case TypeVarchar:
		switch {
		case v.str < other.str:
			return -1
		case v.str > other.str:
			return 1
		default:
			return 0
		}
	default:
		switch {
		case v.integer < other.integer:
			return -1
		case v.integer > other.integer:
			return 1
		default:
			return 0
		}
	}
}

// Equals treats NULL as equal to NULL, which is what hash-table grouping
// wants (SQL filter semantics are handled by expressions).
func (v Value) Equals(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	if v.null || other.null {
		return v.null && other.null
	}

	return v.Compare(other) == 0
}

// Hash folds the value into a 64-bit digest. Equal values hash equally;
// every NULL of one type shares a digest.
func (v Value) Hash() uint64 {
	return v.HashSeeded(valueHashSeed)
}

// HashSeeded is Hash under a caller-chosen seed, for components that need
// several independent hash functions over the same values.
func (v Value) HashSeeded(seed uint64) uint64 {
	var buf [10]byte
	buf[0] = byte(v.typ)

	if v.null {
		buf[1] = 1
		return xxhash.Checksum64S(buf[:2], seed)
	}

	if v.typ == TypeVarchar {
		h := xxhash.NewS64(seed)
		_, _ = h.Write(buf[:2])
		_, _ = h.WriteString(v.str)

		return h.Sum64()
	}

	binary.LittleEndian.PutUint64(buf[2:], uint64(v.integer))

	return xxhash.Checksum64S(buf[:], seed)
}

func (v Value) String() string {
	if v.null {
		return "NULL"
	}

	switch v.typ {
	case TypeBoolean:
		return strconv.FormatBool(v.integer != 0)
	case TypeInteger:
		return strconv.FormatInt(v.integer, 10)
	case TypeVarchar:
		return v.str
	default:
		return "<invalid>"
	}
}

const (
	valueTagNull = 1 << 0
)

// appendTo serialises the value as: type(1) flags(1) payload.
func (v Value) appendTo(dst []byte) []byte {
	var flags byte
	if v.null {
		flags |= valueTagNull
	}
	dst = append(dst, byte(v.typ), flags)

	if v.null {
		return dst
	}

	switch v.typ {
	case TypeVarchar:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v.str)))
		dst = append(dst, v.str...)
	default:
		dst = binary.LittleEndian.AppendUint64(dst, uint64(v.integer))
	}

	return dst
}

// decodeValue reads one value back, returning the remaining bytes.
func decodeValue(src []byte) (Value, []byte, error) {
	if len(src) < 2 {
		return Value{}, nil, errors.Wrap(ErrValueCorrupted, "short header")
	}

	typ := TypeID(src[0])
	flags := src[1]
	src = src[2:]

	if typ == TypeInvalid || typ > TypeVarchar {
		return Value{}, nil, errors.Wrapf(ErrValueCorrupted, "unknown type %d", typ)
	}

	if flags&valueTagNull != 0 {
		return NewNull(typ), src, nil
	}

	if typ == TypeVarchar {
		if len(src) < 4 {
			return Value{}, nil, errors.Wrap(ErrValueCorrupted, "short varchar length")
		}
		n := binary.LittleEndian.Uint32(src)
		src = src[4:]
		if uint32(len(src)) < n {
			return Value{}, nil, errors.Wrapf(ErrValueCorrupted, "varchar length %d", n)
		}

		return NewVarchar(string(src[:n])), src[n:], nil
	}

	if len(src) < 8 {
		return Value{}, nil, errors.Wrap(ErrValueCorrupted, "short payload")
	}
	raw := int64(binary.LittleEndian.Uint64(src))

	res := Value{typ: typ, integer: raw}

	return res, src[8:], nil
}

func formatValues(values []Value) string {
	out := "("
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprint(v)
	}

	return out + ")"
}
