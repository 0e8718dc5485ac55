package wsserver

import (
	"context"
	"time"

	cws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/okets/folderd/internal/fmdm"
)

// session is one connected WebSocket client. Writes are serialized through
// a buffered channel so a broadcast and a handler reply never race on the
// same underlying connection, matching the per-client ordering guarantee.
type session struct {
	id          string
	clientType  fmdm.ClientType
	connectedAt time.Time
	initialized bool

	conn   *cws.Conn
	writeC chan []byte
	doneC  chan struct{}
}

func newSession(conn *cws.Conn) *session {
	return &session{
		id:          uuid.NewString(),
		clientType:  fmdm.ClientUnknown,
		connectedAt: time.Now(),
		conn:        conn,
		writeC:      make(chan []byte, 64),
		doneC:       make(chan struct{}),
	}
}

// writeLoop serializes all writes to this session's connection. It exits
// when doneC is closed or the connection errors.
func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case data, ok := <-s.writeC:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, cws.MessageText, data); err != nil {
				return
			}
		case <-s.doneC:
			return
		}
	}
}

// enqueue queues data for delivery, dropping it silently if the session is
// closing (the broadcast-skip-non-open rule).
func (s *session) enqueue(data []byte) {
	select {
	case s.writeC <- data:
	case <-s.doneC:
	default:
		// Writer is behind; drop rather than block the caller (FMDM publish
		// must not block on client I/O).
	}
}

func (s *session) close() {
	select {
	case <-s.doneC:
		return
	default:
		close(s.doneC)
	}
	_ = s.conn.Close(cws.StatusNormalClosure, "")
}

func (s *session) clientSnapshot() fmdm.ClientSession {
	return fmdm.ClientSession{
		ID:          s.id,
		Type:        s.clientType,
		ConnectedAt: s.connectedAt,
		Initialized: s.initialized,
	}
}
