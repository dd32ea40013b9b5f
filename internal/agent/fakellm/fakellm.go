// Package fakellm provides a scripted chat model for tests.
package fakellm

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("fakellm: no scripted reply left")

// Reply is one scripted model turn.
type Reply struct {
	Content string
	Err     error
	Usage   *schema.TokenUsage
}

// Model replays Replies in order, or delegates to Func when set.
type Model struct {
	mu      sync.Mutex
	replies []Reply
	Func    func(ctx context.Context, in []*schema.Message) (*schema.Message, error)
	inputs  [][]*schema.Message
}

func New(replies ...Reply) *Model {
	return &Model{replies: replies}
}

// Text scripts plain successful replies.
func Text(contents ...string) *Model {
	m := &Model{}
	for _, c := range contents {
		m.replies = append(m.replies, Reply{Content: c})
	}
	return m
}

func (m *Model) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	fn := m.Func
	var (
		next Reply
		ok   bool
	)
	if fn == nil && len(m.replies) > 0 {
		next, m.replies, ok = m.replies[0], m.replies[1:], true
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, in)
	}
	if !ok {
		return nil, ErrExhausted
	}
	if next.Err != nil {
		return nil, next.Err
	}
	msg := schema.AssistantMessage(next.Content, nil)
	if next.Usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{Usage: next.Usage}
	}
	return msg, nil
}

func (m *Model) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns how many times the model was invoked.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Inputs returns the message lists received so far.
func (m *Model) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.inputs...)
}

var _ model.BaseChatModel = (*Model)(nil)
