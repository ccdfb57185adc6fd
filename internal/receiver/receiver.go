// Package receiver implements the receive side: the loss injector, the
// in-order reassembler with out-of-order gap buffering, and the
// delayed-ACK scheduler. The main loop is single-threaded apart from the
// delayed-ACK timer, which fires on its own goroutine and is synchronized
// with the receive path through one mutex — the same shape
// gopkg.in/xtaci/kcp-go.v2's sess.go uses for its updater goroutine
// touching session state guarded by sess.mu.
package receiver

import (
	"bytes"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/anissasoungpanya/reliudp/internal/metrics"
	"github.com/anissasoungpanya/reliudp/internal/wire"
)

// readDeadline is the socket read timeout; it also serves as the
// periodic wakeup that lets Run check the idle-session rule. Tests
// shrink these to keep the suite fast.
var readDeadline = 2 * time.Second

// idleTimeout is how long the receiver waits without any raw datagram
// activity — delivered, out-of-order, dropped, or corrupt — before
// declaring the session over, starting from Run's first read attempt.
var idleTimeout = 30 * time.Second

// Receiver reassembles one incoming file transfer.
type Receiver struct {
	conn     net.PacketConn
	lossProb float64
	rttDelay time.Duration
	rec      *metrics.Recorder
	rng      *rand.Rand

	mu            sync.Mutex
	expectedSeq   uint32
	outOfOrder    map[uint32][]byte
	delivered     bytes.Buffer
	clientAddr    net.Addr
	ackTimerArmed bool
}

// New builds a Receiver. lossProb is the probability, in [0,1], that an
// incoming datagram is discarded before any parsing.
func New(conn net.PacketConn, lossProb float64, rttDelay time.Duration, rec *metrics.Recorder) *Receiver {
	return &Receiver{
		conn:       conn,
		lossProb:   lossProb,
		rttDelay:   rttDelay,
		rec:        rec,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		outOfOrder: make(map[uint32][]byte),
	}
}

// Run receives and reassembles one file. The idle clock starts at the
// session's first read attempt (not at the first successful delivery),
// so a transfer that never delivers a single segment — the empty-file
// case, or one where every datagram is lost or corrupt — still
// terminates by quiescence after idleTimeout rather than blocking
// forever.
func (r *Receiver) Run() []byte {
	buf := make([]byte, wire.HeaderSize+1024)
	lastActivity := time.Now()

	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(lastActivity) > idleTimeout {
					break
				}
				continue
			}
			break
		}

		lastActivity = time.Now()

		if r.rng.Float64() < r.lossProb {
			if r.rec != nil {
				r.rec.RecordDropped()
			}
			continue
		}

		pkt, ok := wire.DecodePacket(buf[:n])
		if !ok {
			continue // truncated, discard silently
		}
		if !pkt.ValidChecksum() {
			if r.rec != nil {
				r.rec.RecordChecksumError()
			}
			continue
		}

		r.handlePacket(pkt.Seq, pkt.Payload, addr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.delivered.Bytes()...)
}

// handlePacket implements the reassembler (spec.md §4.6).
func (r *Receiver) handlePacket(seq uint32, payload []byte, from net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientAddr == nil {
		r.clientAddr = from
	}

	switch {
	case seq < r.expectedSeq:
		// Duplicate of already-delivered data: immediate ACK, no delay,
		// no state change.
		r.sendAckLocked(r.expectedSeq, from)

	case seq == r.expectedSeq:
		r.delivered.Write(payload)
		r.expectedSeq += uint32(len(payload))
		for {
			p, ok := r.outOfOrder[r.expectedSeq]
			if !ok {
				break
			}
			delete(r.outOfOrder, r.expectedSeq)
			r.delivered.Write(p)
			r.expectedSeq += uint32(len(p))
		}
		r.armAckTimerLocked()

	default: // seq > expectedSeq
		if _, buffered := r.outOfOrder[seq]; !buffered {
			r.outOfOrder[seq] = payload
		}
		r.armAckTimerLocked()
	}
}

// armAckTimerLocked arms the single-shot delayed-ACK timer if it is not
// already armed. Caller holds r.mu.
func (r *Receiver) armAckTimerLocked() {
	if r.ackTimerArmed {
		return
	}
	r.ackTimerArmed = true
	time.AfterFunc(r.rttDelay, r.fireDelayedAck)
}

// fireDelayedAck is the ACK scheduler's single-shot timer callback
// (spec.md §4.7): it reports the current expected_seq and disarms.
func (r *Receiver) fireDelayedAck() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ackTimerArmed {
		return
	}
	r.ackTimerArmed = false
	r.sendAckLocked(r.expectedSeq, r.clientAddr)
}

// sendAckLocked writes one ACK packet. Caller holds r.mu.
func (r *Receiver) sendAckLocked(ackNum uint32, to net.Addr) {
	if to == nil {
		return
	}
	_, _ = r.conn.WriteTo(wire.EncodeAck(ackNum), to)
}
