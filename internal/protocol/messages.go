package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/tasklist/internal/todo"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSetInput   MessageType = "set_input"
	TypeAddTask    MessageType = "add_task"
	TypeToggleTask MessageType = "toggle_task"
	TypeDeleteTask MessageType = "delete_task"
	TypeBreakdown  MessageType = "breakdown"
	TypeSummarize  MessageType = "summarize"
	TypeState      MessageType = "state"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type SetInput struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// AddTask uses the current input when Text is empty.
type AddTask struct {
	Type MessageType `json:"type"`
	Text string      `json:"text,omitempty"`
}

type ToggleTask struct {
	Type   MessageType `json:"type"`
	TaskID string      `json:"task_id"`
}

// DeleteTask is one click of the two-click delete.
type DeleteTask struct {
	Type   MessageType `json:"type"`
	TaskID string      `json:"task_id"`
}

type Breakdown struct {
	Type MessageType `json:"type"`
	Text string      `json:"text,omitempty"`
}

type Summarize struct {
	Type MessageType `json:"type"`
}

// StateEvent carries the full render state after every change.
type StateEvent struct {
	Type MessageType `json:"type"`
	todo.State
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

func NewStateEvent(st todo.State) StateEvent {
	return StateEvent{Type: TypeState, State: st}
}

func NewErrorEvent(code, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Detail: detail}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSetInput:
		var msg SetInput
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAddTask:
		var msg AddTask
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeToggleTask:
		var msg ToggleTask
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.TaskID) == "" {
			return nil, errors.New("invalid toggle_task")
		}
		return msg, nil
	case TypeDeleteTask:
		var msg DeleteTask
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.TaskID) == "" {
			return nil, errors.New("invalid delete_task")
		}
		return msg, nil
	case TypeBreakdown:
		var msg Breakdown
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSummarize:
		return Summarize{Type: TypeSummarize}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
