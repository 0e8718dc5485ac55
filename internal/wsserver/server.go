// Package wsserver is the WebSocket fan-out server and client protocol
// state machine: it accepts local-only clients, assigns each a session,
// dispatches typed JSON messages to handlers, and broadcasts FMDM snapshots
// coalesced through the throttler.
package wsserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"

	cws "github.com/coder/websocket"

	"github.com/okets/folderd/internal/fmdm"
	"github.com/okets/folderd/internal/throttle"
	"github.com/okets/folderd/pkg/logger"
)

// Config wires a Server's dependencies. All fields are required except
// Logger, which defaults to a NopLogger.
type Config struct {
	Store     *fmdm.Store
	Throttler *throttle.Throttler
	Folders   FolderService
	Models    ModelsService
	Logger    logger.Logger
}

// Server accepts WebSocket connections on the loopback interface and runs
// the client protocol state machine over them.
type Server struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*session

	listener net.Listener
	httpSrv  *http.Server
	unsub    fmdm.Unsubscribe

	wg sync.WaitGroup
}

// New constructs a Server. Start must be called to begin accepting
// connections.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	return &Server{
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// Start binds to 127.0.0.1:port and begins accepting clients. It fails if
// the port is already bound (e.g. by another daemon).
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.listener = ln

	s.unsub = s.cfg.Store.Subscribe(func(snap fmdm.Snapshot) {
		s.cfg.Throttler.RequestBroadcast(func() { s.broadcastFMDM(snap) })
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpSrv = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.httpSrv.Serve(ln)
	}()
	return nil
}

// Stop closes the listener, closes every active session, and unsubscribes
// from the FMDM store.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsub != nil {
		s.unsub()
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Shutdown(ctx)
	}

	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warning("websocket accept failed: %v", err)
		return
	}
	sess := newSession(conn)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.publishClients()

	ctx := r.Context()
	go sess.writeLoop(ctx)
	s.readLoop(ctx, sess)
}

func (s *Server) readLoop(ctx context.Context, sess *session) {
	defer s.removeSession(sess)
	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			return
		}
		s.dispatch(ctx, sess, data)
	}
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.close()
	s.publishClients()
}

func (s *Server) publishClients() {
	s.mu.RLock()
	clients := make([]fmdm.ClientSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		clients = append(clients, sess.clientSnapshot())
	}
	s.mu.RUnlock()
	s.cfg.Store.UpdateClients(clients)
}

// dispatch validates and routes one inbound frame. Validation failures and
// handler panics produce an error reply; the session is never closed on
// protocol errors.
func (s *Server) dispatch(ctx context.Context, sess *session, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error("panic handling message: %v", r)
			s.sendError(sess, "internal error")
		}
	}()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError(sess, "malformed JSON")
		return
	}
	if env.Type != TypeConnectionInit && env.ID == "" {
		s.sendError(sess, "missing correlation id")
		return
	}

	switch env.Type {
	case TypeConnectionInit:
		s.handleConnectionInit(ctx, sess, env)
	case TypePing:
		s.handlePing(sess, env)
	case TypeFolderValidate:
		s.handleFolderValidate(sess, env)
	case TypeFolderAdd:
		s.handleFolderAdd(sess, env)
	case TypeFolderRemove:
		s.handleFolderRemove(sess, env)
	case TypeModelsList:
		s.handleModelsList(sess, env)
	default:
		s.sendError(sess, "unknown message type: "+env.Type)
	}
}

func (s *Server) sendError(sess *session, message string) {
	s.send(sess, errorReply{Type: TypeError, Message: message})
}

func (s *Server) send(sess *session, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.cfg.Logger.Error("marshal reply: %v", err)
		return
	}
	sess.enqueue(data)
}

// broadcastFMDM iterates sessions, skipping any whose transport is not
// open (session.enqueue silently drops in that case).
func (s *Server) broadcastFMDM(snap fmdm.Snapshot) {
	data, err := json.Marshal(fmdmUpdateMessage{Type: TypeFMDMUpdate, FMDM: snap})
	if err != nil {
		s.cfg.Logger.Error("marshal fmdm snapshot: %v", err)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.enqueue(data)
	}
}

// sendInitial pushes the current snapshot to one client, bypassing the
// throttler, so a newly initialized client sees state immediately.
func (s *Server) sendInitial(sess *session) {
	s.broadcastToOne(sess, s.cfg.Store.GetSnapshot())
}

func (s *Server) broadcastToOne(sess *session, snap fmdm.Snapshot) {
	data, err := json.Marshal(fmdmUpdateMessage{Type: TypeFMDMUpdate, FMDM: snap})
	if err != nil {
		s.cfg.Logger.Error("marshal fmdm snapshot: %v", err)
		return
	}
	sess.enqueue(data)
}
