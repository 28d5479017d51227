package natsx

import (
	"context"
	"encoding/json"
	"time"

	"NoteCollab/tools/errs"
)

const subjectPrefix = "collab.events."

// EventProducer 把协作事件（user_joined/user_left 等）发到 NATS，
// 供通知服务、活动流等外部消费方订阅。
type EventProducer struct {
	c *NatsxClient
}

func NewEventProducer(c *NatsxClient) *EventProducer { return &EventProducer{c: c} }

// Publish subject = collab.events.<event>
func (p *EventProducer) Publish(_ context.Context, event string, payload map[string]any) error {
	body := map[string]any{
		"event":     event,
		"timestamp": time.Now().UnixMilli(),
	}
	for k, v := range payload {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return errs.ErrCollaborator.WrapMsg("marshal event failed", "event", event, "err", err)
	}
	if err := p.c.Publish(subjectPrefix+event, raw); err != nil {
		return errs.ErrCollaborator.WrapMsg("publish event failed", "event", event, "err", err)
	}
	return nil
}
