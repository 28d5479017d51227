package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"NoteCollab/logger"
	ids "NoteCollab/tools/ids"
)

const NodeTypeCollab = "collabNode"

var Global = AppConfig{
	NodeId: "collab_10", // 节点ID
	Port:   8080,

	HeartbeatEvery: 30 * time.Second,
	SweepEvery:     60 * time.Second,
	IdleTimeout:    5 * time.Minute,
	SyncEvery:      5 * time.Minute,

	StoreBackend: "",
	MongoDB:      "notecollab",
	KafkaTopic:   "collab_operation_journal",
}

// ConfigAll 进程启动时统一加载：默认值 <- 环境变量
func ConfigAll() {
	ConfigIds()
	ConfigFromEnv()
}

func ConfigIds() {
	logger.Infof("配置id生成")
	ids.SetNodeID(100)
}

func GetJwtSecret() []byte {
	if s := os.Getenv("COLLAB_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")
}

// ConfigFromEnv 环境变量覆盖（部署时不重编译）
func ConfigFromEnv() {
	if v := os.Getenv("COLLAB_NODE_ID"); v != "" {
		Global.NodeId = v
	}
	if v := os.Getenv("COLLAB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			Global.Port = p
		}
	}
	if v := os.Getenv("COLLAB_STORE"); v != "" {
		Global.StoreBackend = v // mongo / postgres
	}
	if v := os.Getenv("COLLAB_MONGO_URI"); v != "" {
		Global.MongoURI = v
	}
	if v := os.Getenv("COLLAB_MONGO_DB"); v != "" {
		Global.MongoDB = v
	}
	if v := os.Getenv("COLLAB_PG_DSN"); v != "" {
		Global.PostgresDSN = v
	}
	if v := os.Getenv("COLLAB_REDIS_ADDR"); v != "" {
		Global.RedisAddr = v
	}
	if v := os.Getenv("COLLAB_REDIS_PASS"); v != "" {
		Global.RedisPass = v
	}
	if v := os.Getenv("COLLAB_NATS_SERVERS"); v != "" {
		Global.NatsServers = strings.Split(v, ",")
	}
	if v := os.Getenv("COLLAB_KAFKA_BROKERS"); v != "" {
		Global.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("COLLAB_KAFKA_TOPIC"); v != "" {
		Global.KafkaTopic = v
	}
	if v := os.Getenv("COLLAB_DEV_AUTH"); v == "1" || v == "true" {
		Global.DevAuth = true
	}
}
