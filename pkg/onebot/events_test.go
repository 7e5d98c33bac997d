package onebot

import "testing"

func TestDecodeEvent_GroupMessage(t *testing.T) {
	payload := []byte(`{
		"post_type":"message","message_type":"group","sub_type":"normal",
		"message_id":441235,"user_id":10001,"group_id":20002,"self_id":99,
		"time":1700000000,"raw_message":"hello",
		"message":[{"type":"text","data":{"text":"hello"}}]}`)

	evt, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if !evt.IsMessage() || evt.MessageType != "group" {
		t.Fatalf("post_type=%q message_type=%q", evt.PostType, evt.MessageType)
	}
	if evt.MessageID != "441235" {
		t.Fatalf("MessageID = %q, want 441235", evt.MessageID)
	}
	if evt.UserID != 10001 || evt.GroupID != 20002 || evt.SelfID != 99 {
		t.Fatalf("ids = %d/%d/%d", evt.UserID, evt.GroupID, evt.SelfID)
	}
	if len(evt.Message) == 0 {
		t.Fatal("message array not captured")
	}
	if evt.ScopeKey() != "group:20002" {
		t.Fatalf("ScopeKey = %q", evt.ScopeKey())
	}
}

func TestDecodeEvent_StringIDs(t *testing.T) {
	payload := []byte(`{
		"post_type":"message","message_type":"private",
		"message_id":"abc-123","user_id":"10001","time":"1700000000",
		"raw_message":"hi"}`)

	evt, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if evt.MessageID != "abc-123" {
		t.Fatalf("MessageID = %q", evt.MessageID)
	}
	if evt.UserID != 10001 || evt.Time != 1700000000 {
		t.Fatalf("user_id=%d time=%d", evt.UserID, evt.Time)
	}
	if evt.ScopeKey() != "private:10001" {
		t.Fatalf("ScopeKey = %q", evt.ScopeKey())
	}
}

func TestDecodeEvent_Notice(t *testing.T) {
	payload := []byte(`{
		"post_type":"notice","notice_type":"group_recall",
		"group_id":20002,"user_id":10001,"operator_id":10002,"message_id":5}`)

	evt, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if !evt.IsNotice() || evt.NoticeType != "group_recall" {
		t.Fatalf("notice_type = %q", evt.NoticeType)
	}
	if evt.OperatorID != 10002 || evt.MessageID != "5" {
		t.Fatalf("operator=%d message_id=%q", evt.OperatorID, evt.MessageID)
	}
}

func TestDecodeEvent_Heartbeat(t *testing.T) {
	payload := []byte(`{
		"post_type":"meta_event","meta_event_type":"heartbeat",
		"interval":5000,"status":{"online":true,"good":true}}`)

	evt, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if evt.MetaEventType != "heartbeat" {
		t.Fatalf("meta_event_type = %q", evt.MetaEventType)
	}
	if evt.Payload.Get("interval").Int() != 5000 {
		t.Fatal("interval not queryable through payload")
	}
	if !evt.Payload.Get("status.online").Bool() {
		t.Fatal("status not queryable through payload")
	}
}

func TestDecodeEvent_Rejections(t *testing.T) {
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("invalid JSON accepted")
	}
	if _, err := DecodeEvent([]byte(`{"echo":"x","retcode":0}`)); err == nil {
		t.Fatal("frame without post_type accepted")
	}
}
