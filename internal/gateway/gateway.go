// Package gateway is a thin line-oriented TCP front end over the engine's
// programmatic submission port: each connection streams CSV order rows in
// and receives one acknowledgement or error line per row. It exists purely
// as an optional external collaborator over Engine.Submit/Cancel.
package gateway

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"obsim/internal/common"
	"obsim/internal/importer"
	"obsim/internal/workerpool"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultConnWorkers = 10

// Engine is the subset of the core engine a gateway connection needs.
type Engine interface {
	Submit(o *common.Order) error
	Cancel(id string) (bool, error)
}

// Server accepts TCP connections and dispatches each to a pool worker that
// reads CSV order rows until the connection closes.
type Server struct {
	addr   string
	engine Engine
	pool   *workerpool.Pool

	mu        sync.Mutex
	clients   map[string]net.Conn
	boundAddr string
}

func New(addr string, engine Engine) *Server {
	return &Server{
		addr:    addr,
		engine:  engine,
		pool:    workerpool.New(defaultConnWorkers),
		clients: make(map[string]net.Conn),
	}
}

// Run listens on addr and accepts connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	defer listener.Close()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	t.Go(func() error {
		s.pool.Run(t, s.handleConn)
		return nil
	})

	log.Info().Str("addr", s.addr).Msg("gateway listening")
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				t.Kill(nil)
				return t.Wait()
			default:
				log.Error().Err(err).Msg("gateway accept failed")
				continue
			}
		}
		s.addClient(conn)
		s.pool.AddTask(conn)
	}
}

func (s *Server) addClient(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn.RemoteAddr().String()] = conn
}

func (s *Server) removeClient(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, addr)
}

// ConnectedClients reports how many connections are currently open.
func (s *Server) ConnectedClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// BoundAddr returns the address Run actually bound to, once listening has
// started; empty before then. Useful for tests that listen on ":0".
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// handleConn reads CSV order lines from one connection until EOF or the
// pool is dying, submitting each to the engine and writing an
// acknowledgement or error back on the same connection.
func (s *Server) handleConn(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return nil
	}
	addr := conn.RemoteAddr().String()
	defer func() {
		conn.Close()
		s.removeClient(addr)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-t.Dying():
			return nil
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "CANCEL ") {
			id := strings.TrimSpace(strings.TrimPrefix(line, "CANCEL "))
			if _, err := s.engine.Cancel(id); err != nil {
				fmt.Fprintf(conn, "ERR %s\n", err)
			} else {
				fmt.Fprintf(conn, "OK %s\n", id)
			}
			continue
		}
		if err := s.submitLine(conn, line); err != nil {
			fmt.Fprintf(conn, "ERR %s\n", err)
		}
	}
	return nil
}

// submitLine parses a single CSV data row against the importer's shared
// validation rules, using a one-line synthetic header so per-row logic
// never diverges from batch CSV import.
func (s *Server) submitLine(conn net.Conn, line string) error {
	reader := strings.NewReader("trader_id,symbol,side,quantity,price\n" + line + "\n")

	result, err := importer.ImportOrders(reader, uuid.NewString, func(o *common.Order) error {
		if err := s.engine.Submit(o); err != nil {
			return err
		}
		fmt.Fprintf(conn, "OK %s\n", o.ID)
		return nil
	})
	if err != nil {
		return err
	}
	if result.RowsFailed > 0 {
		return fmt.Errorf("%s", result.Errors[1])
	}
	return nil
}
