package sender_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/anissasoungpanya/reliudp/internal/metrics"
	"github.com/anissasoungpanya/reliudp/internal/sender"
	"github.com/anissasoungpanya/reliudp/internal/wire"
)

// fakeReceiver acks every segment it sees exactly once, cumulatively,
// simulating a lossless peer without pulling in the real reassembler.
func fakeReceiver(t *testing.T, conn net.PacketConn, total int) {
	t.Helper()
	buf := make([]byte, 2048)
	expected := uint32(0)
	for expected < uint32(total) {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		pkt, ok := wire.DecodePacket(buf[:n])
		if !ok || !pkt.ValidChecksum() {
			continue
		}
		if pkt.Seq == expected {
			expected += uint32(len(pkt.Payload))
		}
		_, _ = conn.WriteTo(wire.EncodeAck(expected), addr)
	}
}

func TestRunDeliversAllBytesOverLoopback(t *testing.T) {
	senderConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen sender: %v", err)
	}
	defer senderConn.Close()

	receiverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen receiver: %v", err)
	}
	defer receiverConn.Close()

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeReceiver(t, receiverConn, len(data))
	}()

	rec := metrics.NewRecorder()
	s := sender.New(senderConn, receiverConn.LocalAddr(), data, 200*time.Millisecond, 64, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Bytes != len(data) {
		t.Errorf("stats.Bytes = %d, want %d", stats.Bytes, len(data))
	}

	<-done
}

func TestRunEmptyFileCompletesImmediately(t *testing.T) {
	senderConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen sender: %v", err)
	}
	defer senderConn.Close()

	rec := metrics.NewRecorder()
	s := sender.New(senderConn, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}, nil, 200*time.Millisecond, 64, rec)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stats, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Bytes != 0 {
		t.Errorf("stats.Bytes = %d, want 0", stats.Bytes)
	}
}

func TestRunRetransmitsOnDroppedSegment(t *testing.T) {
	senderConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen sender: %v", err)
	}
	defer senderConn.Close()

	receiverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen receiver: %v", err)
	}
	defer receiverConn.Close()

	data := make([]byte, 1024) // one segment

	dropOnce := make(chan struct{}, 1)
	dropOnce <- struct{}{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 2048)
		for {
			_ = receiverConn.SetReadDeadline(time.Now().Add(3 * time.Second))
			n, addr, err := receiverConn.ReadFrom(buf)
			if err != nil {
				return
			}
			pkt, ok := wire.DecodePacket(buf[:n])
			if !ok || !pkt.ValidChecksum() {
				continue
			}
			select {
			case <-dropOnce:
				continue // simulate one lost segment, forcing a timeout retransmit
			default:
			}
			_, _ = receiverConn.WriteTo(wire.EncodeAck(uint32(len(pkt.Payload))), addr)
			return
		}
	}()

	rec := metrics.NewRecorder()
	s := sender.New(senderConn, receiverConn.LocalAddr(), data, 200*time.Millisecond, 64, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.TimeoutRetransmits < 1 {
		t.Errorf("TimeoutRetransmits = %d, want at least 1", stats.TimeoutRetransmits)
	}

	<-done
}
