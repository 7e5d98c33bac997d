package onebot

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// RawEvent is one frame pushed by the OneBot implementation. Numeric ids may
// arrive either as JSON numbers or as strings depending on the backend, so
// they are normalized during decode.
type RawEvent struct {
	PostType      string
	MessageType   string
	SubType       string
	NoticeType    string
	RequestType   string
	MetaEventType string

	MessageID string
	UserID    int64
	GroupID   int64
	TargetID  int64
	OperatorID int64
	SelfID    int64
	Time      int64

	RawMessage string
	Message    json.RawMessage

	// Payload keeps the whole frame queryable for fields not lifted above.
	Payload gjson.Result
}

func (e *RawEvent) IsMessage() bool { return e.PostType == "message" }
func (e *RawEvent) IsNotice() bool  { return e.PostType == "notice" }

// ScopeKey identifies the conversation an event belongs to, group chats by
// group id and direct chats by peer id.
func (e *RawEvent) ScopeKey() string {
	if e.GroupID != 0 {
		return fmt.Sprintf("group:%d", e.GroupID)
	}
	return fmt.Sprintf("private:%d", e.UserID)
}

// DecodeEvent parses a pushed frame. Frames carrying an echo field are API
// responses, not events, and must be routed before calling this.
func DecodeEvent(payload []byte) (*RawEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("invalid event payload")
	}
	root := gjson.ParseBytes(payload)

	e := &RawEvent{
		PostType:      root.Get("post_type").String(),
		MessageType:   root.Get("message_type").String(),
		SubType:       root.Get("sub_type").String(),
		NoticeType:    root.Get("notice_type").String(),
		RequestType:   root.Get("request_type").String(),
		MetaEventType: root.Get("meta_event_type").String(),
		MessageID:     flexID(root.Get("message_id")),
		UserID:        flexInt64(root.Get("user_id")),
		GroupID:       flexInt64(root.Get("group_id")),
		TargetID:      flexInt64(root.Get("target_id")),
		OperatorID:    flexInt64(root.Get("operator_id")),
		SelfID:        flexInt64(root.Get("self_id")),
		Time:          flexInt64(root.Get("time")),
		RawMessage:    root.Get("raw_message").String(),
		Payload:       root,
	}
	if e.PostType == "" {
		return nil, fmt.Errorf("event payload carries no post_type")
	}

	if msg := root.Get("message"); msg.Exists() {
		e.Message = json.RawMessage(msg.Raw)
	}
	return e, nil
}

// flexID keeps the id's canonical text form, whether the backend sent a
// number or a string.
func flexID(v gjson.Result) string {
	switch v.Type {
	case gjson.Number:
		return strconv.FormatInt(v.Int(), 10)
	case gjson.String:
		return v.String()
	}
	return ""
}

func flexInt64(v gjson.Result) int64 {
	switch v.Type {
	case gjson.Number:
		return v.Int()
	case gjson.String:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
