package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Signaler is the client end of the message channel.
type Signaler interface {
	ConnectionID() domain.ConnectionID
	// Request sends a correlated request and waits for its ack. An ack that
	// carries an error body is returned as *RemoteError.
	Request(ctx context.Context, t protocol.MessageType, data any) (protocol.Envelope, error)
	// Events delivers server pushes. It closes when the channel goes away.
	Events() <-chan protocol.Envelope
	Close() error
}

type WSSignaler struct {
	conn *websocket.Conn
	id   domain.ConnectionID
	seq  atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Envelope

	events    chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

var _ Signaler = (*WSSignaler)(nil)

// Dial connects and waits for connect-success.
func Dial(ctx context.Context, url string) (*WSSignaler, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("await connect-success: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := protocol.Decode(data)
	if err != nil || env.Type != protocol.TypeConnectSuccess {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q: %w", env.Type, err)
	}
	var cs protocol.ConnectSuccess
	if err := env.Bind(&cs); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := &WSSignaler{
		conn:    conn,
		id:      cs.ConnectionID,
		pending: make(map[string]chan protocol.Envelope),
		events:  make(chan protocol.Envelope, 64),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	log.Info().Str("module", "client.signal").Str("conn", string(s.id)).Msg("connected")
	return s, nil
}

func (s *WSSignaler) ConnectionID() domain.ConnectionID { return s.id }
func (s *WSSignaler) Events() <-chan protocol.Envelope  { return s.events }

func (s *WSSignaler) readLoop() {
	defer close(s.events)
	defer s.shutdown()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "client.signal").Msg("read")
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.signal").Msg("bad frame")
			continue
		}
		if (env.Type == protocol.TypeAck || env.Type == protocol.TypePong) && s.deliver(env) {
			continue
		}
		select {
		case s.events <- env:
		case <-s.done:
			return
		}
	}
}

func (s *WSSignaler) deliver(env protocol.Envelope) bool {
	s.mu.Lock()
	ch, ok := s.pending[env.ID]
	delete(s.pending, env.ID)
	s.mu.Unlock()
	if ok {
		ch <- env
	}
	return ok
}

func (s *WSSignaler) Request(ctx context.Context, t protocol.MessageType, data any) (protocol.Envelope, error) {
	id := strconv.FormatUint(s.seq.Add(1), 10)
	ch := make(chan protocol.Envelope, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(t, id, data); err != nil {
		return protocol.Envelope{}, err
	}
	select {
	case env := <-ch:
		if err := ackError(env); err != nil {
			return env, err
		}
		return env, nil
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	case <-s.done:
		return protocol.Envelope{}, ErrSignalClosed
	}
}

func (s *WSSignaler) write(t protocol.MessageType, id string, data any) error {
	b, err := protocol.Encode(t, id, data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.done:
		return ErrSignalClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

func (s *WSSignaler) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *WSSignaler) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.shutdown()
	return nil
}
