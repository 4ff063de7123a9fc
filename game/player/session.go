package player

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf  = 256
	writeWait    = 10 * time.Second
	readWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewPacket encodes payload into a packet of the given type.
func NewPacket(typ string, payload interface{}) (*Packet, error) {
	if payload == nil {
		return &Packet{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Packet{Type: typ, Payload: raw}, nil
}

// PlayerSession is a character connected over WebSocket. Outbound frames
// go through SendChan and are written by a single goroutine; Done closes
// when the session ends.
type PlayerSession struct {
	CharID   int64
	CharName string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	lastSeq   uint64
	lastMove  time.Time
	dropped   atomic.Int64
	logger    *zap.Logger
}

// NewPlayerSession wraps conn and starts its writer.
func NewPlayerSession(charID int64, name string, conn *websocket.Conn, logger *zap.Logger) *PlayerSession {
	s := &PlayerSession{
		CharID:   charID,
		CharName: name,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	go s.writePump()
	return s
}

func (s *PlayerSession) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *PlayerSession) write(msgType int, data []byte) error {
	_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.Conn.WriteMessage(msgType, data)
}

// writePump owns all writes to Conn. It also pings the peer so a dead
// connection trips the read deadline.
func (s *PlayerSession) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()
	for {
		select {
		case data := <-s.SendChan:
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.log().Warn("ws write error", zap.Int64("char_id", s.CharID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it. Packets are dropped when the session is
// closed or its queue is full.
func (s *PlayerSession) Send(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		s.log().Error("encode packet", zap.String("type", pkt.Type), zap.Error(err))
		return
	}
	if !s.enqueue(data) {
		s.log().Warn("send queue full, dropping packet",
			zap.Int64("char_id", s.CharID),
			zap.String("type", pkt.Type))
	}
}

// SendEvent wraps payload in a packet of type typ and sends it.
func (s *PlayerSession) SendEvent(typ string, payload interface{}) {
	pkt, err := NewPacket(typ, payload)
	if err != nil {
		s.log().Error("encode packet", zap.String("type", typ), zap.Error(err))
		return
	}
	s.Send(pkt)
}

// SendRaw queues an already encoded packet.
func (s *PlayerSession) SendRaw(data []byte) {
	if !s.enqueue(data) {
		s.log().Warn("send queue full, dropping raw packet", zap.Int64("char_id", s.CharID))
	}
}

// enqueue reports false only when the frame was dropped on a live session.
func (s *PlayerSession) enqueue(data []byte) bool {
	if s.IsClosed() {
		return true
	}
	select {
	case s.SendChan <- data:
		return true
	case <-s.Done:
		return true
	default:
		s.dropped.Add(1)
		return s.IsClosed()
	}
}

// Dropped counts frames discarded because the send queue was full.
func (s *PlayerSession) Dropped() int64 {
	return s.dropped.Load()
}

// Close ends the session. Safe to call more than once.
func (s *PlayerSession) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// IsClosed returns true if the session has been closed.
func (s *PlayerSession) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// AcceptSeq records a client sequence number. Zero is untracked; any other
// value must be greater than the last accepted one.
func (s *PlayerSession) AcceptSeq(seq uint64) bool {
	if seq == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	return true
}

// AllowMove reports whether a bank move may run now and, if so, starts the
// cooldown.
func (s *PlayerSession) AllowMove(cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastMove) < cooldown {
		return false
	}
	s.lastMove = now
	return true
}

// SendHeartbeatPong answers a client ping with both clocks.
func (s *PlayerSession) SendHeartbeatPong(clientTS int64) {
	s.SendEvent("pong", struct {
		ClientTS int64 `json:"client_ts"`
		ServerTS int64 `json:"server_ts"`
	}{clientTS, time.Now().UnixMilli()})
}

// SetReadDeadline pushes the read deadline out by one heartbeat window.
func (s *PlayerSession) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readWait))
}
