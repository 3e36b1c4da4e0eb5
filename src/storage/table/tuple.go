package table

import (
	"encoding/binary"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// Tuple is one materialised row. The record id is set when the tuple lives
// in (or came from) a heap; intermediate rows carry the zero id.
type Tuple struct {
	values []Value
	rid    common.RecordID
}

func NewTuple(values []Value) *Tuple {
	return &Tuple{values: values}
}

func (t *Tuple) Value(idx int) Value {
	assert.Assert(idx >= 0 && idx < len(t.values), "value index %d out of range", idx)
	return t.values[idx]
}

func (t *Tuple) Values() []Value {
	return t.values
}

func (t *Tuple) ColumnCount() int {
	return len(t.values)
}

func (t *Tuple) RID() common.RecordID {
	return t.rid
}

func (t *Tuple) SetRID(rid common.RecordID) {
	t.rid = rid
}

func (t *Tuple) String() string {
	return formatValues(t.values)
}

// MarshalBinary encodes the row as a 2-byte value count followed by the
// value encodings. The record id is not part of the payload.
func (t *Tuple) MarshalBinary() ([]byte, error) {
	assert.Assert(len(t.values) <= int(^uint16(0)), "too many values in a tuple")

	out := binary.LittleEndian.AppendUint16(nil, uint16(len(t.values)))
	for _, v := range t.values {
		out = v.appendTo(out)
	}

	return out, nil
}

func (t *Tuple) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return errors.Wrap(ErrValueCorrupted, "short tuple header")
	}

	count := int(binary.LittleEndian.Uint16(data))
	data = data[2:]

	values := make([]Value, 0, count)
	for range count {
		v, rest, err := decodeValue(data)
		if err != nil {
			return errors.Wrap(err, "decode tuple value")
		}
		values = append(values, v)
		data = rest
	}

	t.values = values

	return nil
}

// SerializedSize is the exact MarshalBinary length, used by spill buffers to
// account for memory before materialising the bytes.
func (t *Tuple) SerializedSize() int {
	size := 2
	for _, v := range t.values {
		size += 2
		if v.IsNull() {
			continue
		}
		if v.Type() == TypeVarchar {
			size += 4 + len(v.str)
		} else {
			size += 8
		}
	}

	return size
}
