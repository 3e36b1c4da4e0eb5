package common

import (
	"bytes"
	"encoding/binary"
)

// PageID addresses one fixed-size page inside the database file.
// Negative values are never allocated; InvalidPageID marks "no page".
type PageID int64

const InvalidPageID PageID = -1

func (p PageID) IsValid() bool {
	return p >= 0
}

// FrameID addresses one in-memory slot of the buffer pool, [0, poolSize).
type FrameID uint64

// RecordID locates one tuple inside a table heap.
type RecordID struct {
	PageID  PageID
	SlotNum uint16
}

// RecordIDSize is the marshalled size of a RecordID.
const RecordIDSize = 10

func (r RecordID) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, r.PageID)
	_ = binary.Write(buf, binary.LittleEndian, r.SlotNum)

	return buf.Bytes(), nil
}

func (r *RecordID) UnmarshalBinary(data []byte) error {
	rd := bytes.NewReader(data)
	if err := binary.Read(rd, binary.LittleEndian, &r.PageID); err != nil {
		return err
	}

	return binary.Read(rd, binary.LittleEndian, &r.SlotNum)
}
