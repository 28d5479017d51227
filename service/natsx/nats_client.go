package natsx

import (
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"NoteCollab/logger"
)

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NatsxClient 统一客户端（core 模式，事件允许丢）
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","),
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[natsx] disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[natsx] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NatsxClient{cfg: cfg, nc: nc}, nil
}

func (c *NatsxClient) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *NatsxClient) Close() {
	if c.nc != nil {
		c.nc.Drain()
	}
}
