package collab

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"NoteCollab/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	controlTimeout = 5 * time.Second
)

// wsTransport 把 *websocket.Conn 适配为 Transport。
// gorilla 的写端非并发安全，Send/Ping/Close 共用一把锁。
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlTimeout))
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(controlTimeout))
	return t.conn.Close()
}

// Server 对外 HTTP/WS 入口
type Server struct {
	engine *Engine
	auth   Authenticator
}

func NewServer(engine *Engine, auth Authenticator) *Server {
	return &Server{engine: engine, auth: auth}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:workspace", s.HandleWS)
	r.GET("/healthz", s.handleHealth)
	r.GET("/stats", s.handleStats)
}

// HandleWS 升级连接并驱动读循环。写侧由 Conn 的写协程独占。
func (s *Server) HandleWS(c *gin.Context) {
	workspaceID := c.Param("workspace")
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace required"})
		return
	}

	user, err := s.auth.Authenticate(c.Request)
	if err != nil {
		logger.Warnf("[ws] auth rejected remote=%s err=%v", c.Request.RemoteAddr, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("[ws] upgrade failed remote=%s err=%v", c.Request.RemoteAddr, err)
		return
	}

	conn := s.engine.Join(newWSTransport(ws), workspaceID, user)
	defer s.engine.Leave(conn.ConnID)

	ws.SetPongHandler(func(string) error {
		conn.TouchPing()
		return nil
	})

	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Infof("[ws] client closed conn=%s user=%s", conn.ConnID, user.ID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Warnf("[ws] read timeout conn=%s user=%s", conn.ConnID, user.ID)
			} else {
				logger.Warnf("[ws] read error conn=%s user=%s err=%v", conn.ConnID, user.ID, err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		s.engine.HandleInbound(conn, raw)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"active_connections": st.ActiveConnections,
		"active_workspaces":  st.ActiveWorkspaces,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}
