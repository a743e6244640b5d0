package main

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// Server 命令服务，接受换行分隔的JSON请求
// 调试事件会广播给所有已连接的客户端
type Server struct {
	listener net.Listener
	handler  *DebuggerHandler

	mutex sync.Mutex
	conns []net.Conn
}

func NewServer(listener net.Listener) *Server {
	return &Server{listener: listener}
}

func (s *Server) SetHandler(handler *DebuggerHandler) {
	s.handler = handler
}

func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			logrus.Warnf("accept fail, err = %v", err)
			return
		}
		s.mutex.Lock()
		s.conns = append(s.conns, conn)
		s.mutex.Unlock()
		// Handle multiple client connections concurrently
		go s.handleConnection(conn)
	}
}

// handleConnection handles a connection from a single client.
// It reads the incoming requests line by line and dispatches
// them to the handler.
func (s *Server) handleConnection(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handler.handle(conn, line)
	}
	logrus.Infof("closing connection from %v", conn.RemoteAddr())
	s.removeConn(conn)
	conn.Close()
}

func (s *Server) removeConn(conn net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			return
		}
	}
}

// Broadcast 调试事件广播给所有客户端
func (s *Server) Broadcast(event dap.EventMessage) {
	answer, err := json.Marshal(event)
	if err != nil {
		logrus.Errorf("marshal event fail, err = %v", err)
		return
	}
	answer = append(answer, '\n')
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, conn := range s.conns {
		if _, err = conn.Write(answer); err != nil {
			logrus.Warnf("write event fail, err = %v", err)
		}
	}
}
