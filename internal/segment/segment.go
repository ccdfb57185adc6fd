// Package segment partitions a file buffer into the fixed-size chunks the
// wire protocol transmits, and keeps the original payloads addressable by
// sequence number so the retransmission engine can resend the exact bytes
// it sent the first time.
package segment

// MaxPayload is the maximum number of payload bytes per segment. Every
// segment is exactly MaxPayload bytes except possibly the last one.
const MaxPayload = 1024

// Segment is a (seq, payload) pair. seq is the byte offset at which this
// segment's payload begins in the file.
type Segment struct {
	Seq     uint32
	Payload []byte
}

// Split partitions data into segments of at most MaxPayload bytes each,
// with Seq set to the byte offset of each segment's first byte. An empty
// buffer yields an empty slice.
func Split(data []byte) []Segment {
	if len(data) == 0 {
		return nil
	}

	segments := make([]Segment, 0, (len(data)+MaxPayload-1)/MaxPayload)
	for offset := 0; offset < len(data); offset += MaxPayload {
		end := offset + MaxPayload
		if end > len(data) {
			end = len(data)
		}
		segments = append(segments, Segment{
			Seq:     uint32(offset),
			Payload: data[offset:end],
		})
	}
	return segments
}

// Table indexes segments by sequence number for O(1) retransmission
// lookups. The table is built once and never mutated after segmentation.
type Table map[uint32]Segment

// NewTable builds a lookup table from a segment list.
func NewTable(segments []Segment) Table {
	t := make(Table, len(segments))
	for _, s := range segments {
		t[s.Seq] = s
	}
	return t
}
