package segment_test

import (
	"bytes"
	"testing"

	"github.com/anissasoungpanya/reliudp/internal/segment"
)

func TestSplitEmpty(t *testing.T) {
	segs := segment.Split(nil)
	if len(segs) != 0 {
		t.Fatalf("expected no segments for empty input, got %d", len(segs))
	}
}

func TestSplitExactMultiple(t *testing.T) {
	data := make([]byte, segment.MaxPayload*3)
	for i := range data {
		data[i] = byte(i)
	}

	segs := segment.Split(data)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}

	wantSeq := []uint32{0, 1024, 2048}
	for i, s := range segs {
		if s.Seq != wantSeq[i] {
			t.Errorf("segment %d: seq = %d, want %d", i, s.Seq, wantSeq[i])
		}
		if len(s.Payload) != segment.MaxPayload {
			t.Errorf("segment %d: len(payload) = %d, want %d", i, len(s.Payload), segment.MaxPayload)
		}
	}

	var reassembled []byte
	for _, s := range segs {
		reassembled = append(reassembled, s.Payload...)
	}
	if !bytes.Equal(reassembled, data) {
		t.Error("reassembled segments do not match original data")
	}
}

func TestSplitShortLastSegment(t *testing.T) {
	data := make([]byte, segment.MaxPayload+100)
	segs := segment.Split(data)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if len(segs[0].Payload) != segment.MaxPayload {
		t.Errorf("first segment length = %d, want %d", len(segs[0].Payload), segment.MaxPayload)
	}
	if len(segs[1].Payload) != 100 {
		t.Errorf("last segment length = %d, want 100", len(segs[1].Payload))
	}
	if segs[1].Seq != segment.MaxPayload {
		t.Errorf("last segment seq = %d, want %d", segs[1].Seq, segment.MaxPayload)
	}
}

func TestNewTableLookup(t *testing.T) {
	data := make([]byte, segment.MaxPayload+1)
	segs := segment.Split(data)
	table := segment.NewTable(segs)

	for _, s := range segs {
		got, ok := table[s.Seq]
		if !ok {
			t.Fatalf("table missing seq %d", s.Seq)
		}
		if got.Seq != s.Seq || len(got.Payload) != len(s.Payload) {
			t.Errorf("table[%d] = %+v, want %+v", s.Seq, got, s)
		}
	}
}
