package config

import (
	"time"
)

type AppConfig struct {
	NodeId string // 节点的Id
	Port   int    // http 启动端口

	// 引擎节奏
	HeartbeatEvery time.Duration // 心跳周期
	SweepEvery     time.Duration // 闲置清扫周期
	IdleTimeout    time.Duration // 无心跳判死阈值
	SyncEvery      time.Duration // 快照落盘周期

	// 协作方开关（地址为空即不启用）
	StoreBackend string // mongo / postgres / 空=不持久化
	MongoURI     string
	MongoDB      string
	PostgresDSN  string
	RedisAddr    string
	RedisPass    string
	NatsServers  []string
	KafkaBrokers []string
	KafkaTopic   string

	DevAuth bool // 本地联调免 JWT
}
