package collab

import (
	"sync"
	"sync/atomic"
	"time"

	"NoteCollab/logger"
	"NoteCollab/module/collab/model"
)

// Transport 协作方提供的按连接双向通道（有序、可靠）。
// 引擎不关心帧如何封装上线路；websocket 实现见 ws_server.go，
// 测试里用内存假实现。
type Transport interface {
	Send(payload []byte) error
	Ping() error
	Close() error
}

const sendQueueSize = 256

// Conn 一条已认证的活跃连接：一个传输通道、一个用户身份、一个工作区绑定。
// 出站统一走 send 队列，由单写协程消费；慢客户端丢帧不阻塞别人。
type Conn struct {
	ConnID      string
	User        model.User
	WorkspaceID string

	transport Transport
	send      chan []byte

	active      atomic.Bool
	lastPing    atomic.Int64 // unix milli
	connectedAt time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(connID string, user model.User, workspaceID string, transport Transport) *Conn {
	c := &Conn{
		ConnID:      connID,
		User:        user,
		WorkspaceID: workspaceID,
		transport:   transport,
		send:        make(chan []byte, sendQueueSize),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
	c.active.Store(true)
	c.lastPing.Store(time.Now().UnixMilli())
	return c
}

// Enqueue 入队出站帧；连接不活跃或队列满则丢弃（尽力投递，无回执）。
func (c *Conn) Enqueue(payload []byte) bool {
	if !c.active.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		logger.Warnf("[conn] send queue full, drop frame conn=%s user=%s", c.ConnID, c.User.ID)
		return false
	}
}

// WriteLoop 单写协程：消费 send 队列直到连接关闭。
// 写失败标记不活跃但不在此处摘除索引，摘除统一走 Leave。
func (c *Conn) WriteLoop() {
	for {
		select {
		case payload := <-c.send:
			if err := c.transport.Send(payload); err != nil {
				logger.Warnf("[conn] send failed conn=%s user=%s err=%v", c.ConnID, c.User.ID, err)
				c.MarkInactive()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Ping 心跳探测；失败标记不活跃（不立刻踢，留给闲置清扫）。
func (c *Conn) Ping() {
	if !c.active.Load() {
		return
	}
	if err := c.transport.Ping(); err != nil {
		logger.Warnf("[conn] ping failed conn=%s user=%s err=%v", c.ConnID, c.User.ID, err)
		c.MarkInactive()
		return
	}
	c.lastPing.Store(time.Now().UnixMilli())
}

func (c *Conn) MarkInactive() { c.active.Store(false) }

func (c *Conn) IsActive() bool { return c.active.Load() }

// LastPing 最近一次心跳成功时间
func (c *Conn) LastPing() time.Time {
	return time.UnixMilli(c.lastPing.Load())
}

// TouchPing 收到对端 ping/pong 时刷新
func (c *Conn) TouchPing() { c.lastPing.Store(time.Now().UnixMilli()) }

// Close 幂等关闭：停写协程并关底层传输。
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.active.Store(false)
		close(c.done)
		if err := c.transport.Close(); err != nil {
			logger.Debug("[conn] close transport: " + err.Error())
		}
	})
}
