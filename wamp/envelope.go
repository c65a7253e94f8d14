package wamp

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Result is the discriminator carried by every board RPC reply.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultWarning Result = "WARNING"
	ResultError   Result = "ERROR"
)

// Message is the reply envelope exchanged with boards: a result discriminator
// plus an opaque payload interpreted by the caller.
type Message struct {
	Result  Result `json:"result"`
	Message any    `json:"message"`
}

func NewSuccess(payload any) *Message { return &Message{Result: ResultSuccess, Message: payload} }
func NewWarning(payload any) *Message { return &Message{Result: ResultWarning, Message: payload} }
func NewError(payload any) *Message   { return &Message{Result: ResultError, Message: payload} }

// Encode marshals the envelope to JSON.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode unmarshals a reply envelope, rejecting unknown discriminators.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch m.Result {
	case ResultSuccess, ResultWarning, ResultError:
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown envelope result: %q", m.Result)
	}
}

// Request is the invoke envelope published to an agent's dispatch topic.
// ReplyTo names the topic the agent answers on, correlated by MsgID.
type Request struct {
	MsgID     string `json:"msg_id"`
	Procedure string `json:"procedure"`
	Args      []any  `json:"args"`
	ReplyTo   string `json:"reply_to"`
}

// Reply wraps a reply envelope with its correlation id for two-stage decode:
// first match the msg_id, then decode the body.
type Reply struct {
	MsgID string          `json:"msg_id"`
	Body  json.RawMessage `json:"body"`
}

// NewRequest creates an invoke envelope with a fresh correlation id.
func NewRequest(procedure string, args []any, replyTo string) *Request {
	return &Request{
		MsgID:     uuid.New().String(),
		Procedure: procedure,
		Args:      args,
		ReplyTo:   replyTo,
	}
}

func (r *Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRequest(data []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if r.Procedure == "" {
		return nil, fmt.Errorf("decode request: missing procedure")
	}
	return &r, nil
}

func (r *Reply) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func DecodeReply(data []byte) (*Reply, error) {
	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &r, nil
}

// DispatchTopic returns the invoke topic for an agent host.
func DispatchTopic(agent string) string {
	return agent + "." + InvokeSuffix
}

// ProcedureFQN builds the fully-qualified remote procedure name registered
// by a board.
func ProcedureFQN(boardUUID, procedure string) string {
	return Namespace + "." + boardUUID + "." + procedure
}

const (
	// Namespace prefixes every board-registered procedure.
	Namespace = "iotronic"
	// InvokeSuffix is appended to the agent hostname to form its dispatch topic.
	InvokeSuffix = "s4t_invoke"
)
