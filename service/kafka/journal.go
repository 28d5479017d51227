package kafka

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"NoteCollab/logger"
	"NoteCollab/module/collab/model"
)

// Config 操作流水 kafka 参数
type Config struct {
	Brokers []string
	Topic   string
}

// journalEntry 写入 kafka 的流水记录
type journalEntry struct {
	WorkspaceID string          `json:"workspace_id"`
	DocumentID  string          `json:"document_id"`
	Version     int             `json:"version"`
	Operation   model.Operation `json:"operation"`
	LoggedAt    int64           `json:"logged_at"`
}

// Journal 已应用操作的异步流水：发去 kafka 给审计/回放消费。
// 纯旁路：失败只记日志，绝不反压编辑路径。
type Journal struct {
	producer sarama.AsyncProducer
	topic    string
}

func NewJournal(cfg Config) (*Journal, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true

	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}
	j := &Journal{producer: p, topic: cfg.Topic}

	go func() {
		for perr := range p.Errors() {
			logger.Warnf("[kafka] journal write failed topic=%s err=%v", perr.Msg.Topic, perr.Err)
		}
	}()

	logger.Infof("[kafka] journal producer ready topic=%s", cfg.Topic)
	return j, nil
}

// AppendOperation 异步入流水；按 documentID 分区保证同文档有序。
func (j *Journal) AppendOperation(workspaceID, documentID string, op model.Operation, version int) {
	raw, err := json.Marshal(journalEntry{
		WorkspaceID: workspaceID,
		DocumentID:  documentID,
		Version:     version,
		Operation:   op,
		LoggedAt:    time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Warnf("[kafka] marshal journal entry failed doc=%s err=%v", documentID, err)
		return
	}
	j.producer.Input() <- &sarama.ProducerMessage{
		Topic: j.topic,
		Key:   sarama.StringEncoder(workspaceID + ":" + documentID),
		Value: sarama.ByteEncoder(raw),
	}
}

func (j *Journal) Close() error {
	return j.producer.Close()
}
