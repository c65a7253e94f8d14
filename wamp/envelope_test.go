package wamp

import (
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := NewSuccess(map[string]any{"temp": 21.5})
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Result != ResultSuccess {
		t.Errorf("Result = %q, want %q", got.Result, ResultSuccess)
	}
	payload, ok := got.Message.(map[string]any)
	if !ok {
		t.Fatalf("Message type = %T, want map", got.Message)
	}
	if payload["temp"] != 21.5 {
		t.Errorf("temp = %v, want 21.5", payload["temp"])
	}
}

func TestDecodeDiscriminators(t *testing.T) {
	cases := []struct {
		body string
		want Result
	}{
		{`{"result":"SUCCESS","message":"ok"}`, ResultSuccess},
		{`{"result":"WARNING","message":"degraded"}`, ResultWarning},
		{`{"result":"ERROR","message":"boom"}`, ResultError},
	}
	for _, c := range cases {
		got, err := Decode([]byte(c.body))
		if err != nil {
			t.Errorf("decode %s: %v", c.body, err)
			continue
		}
		if got.Result != c.want {
			t.Errorf("Result = %q, want %q", got.Result, c.want)
		}
	}
}

func TestDecodeRejectsUnknownResult(t *testing.T) {
	if _, err := Decode([]byte(`{"result":"MAYBE","message":"?"}`)); err == nil {
		t.Error("expected error for unknown result")
	}
	if _, err := Decode([]byte(`{"message":"no result"}`)); err == nil {
		t.Error("expected error for missing result")
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest("iotronic.b-1.PluginStatus", []any{"p-1"}, "iotronic.replies.cond-a")
	if req.MsgID == "" {
		t.Fatal("MsgID should be assigned")
	}

	data, err := req.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MsgID != req.MsgID {
		t.Errorf("MsgID = %q, want %q", got.MsgID, req.MsgID)
	}
	if got.Procedure != "iotronic.b-1.PluginStatus" {
		t.Errorf("Procedure = %q", got.Procedure)
	}
	if got.ReplyTo != "iotronic.replies.cond-a" {
		t.Errorf("ReplyTo = %q", got.ReplyTo)
	}
	if len(got.Args) != 1 || got.Args[0] != "p-1" {
		t.Errorf("Args = %v, want [p-1]", got.Args)
	}
}

func TestDecodeRequestRequiresProcedure(t *testing.T) {
	if _, err := DecodeRequest([]byte(`{"msg_id":"m-1","args":[]}`)); err == nil {
		t.Error("expected error for missing procedure")
	}
}

func TestReplyRoundTrip(t *testing.T) {
	body, _ := NewSuccess("done").Encode()
	reply := &Reply{MsgID: "m-1", Body: body}

	data, err := reply.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeReply(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MsgID != "m-1" {
		t.Errorf("MsgID = %q, want m-1", got.MsgID)
	}
	inner, err := Decode(got.Body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if inner.Message != "done" {
		t.Errorf("Message = %v, want done", inner.Message)
	}
}

func TestDispatchTopic(t *testing.T) {
	got := DispatchTopic("agent-1")
	if got != "agent-1.s4t_invoke" {
		t.Errorf("DispatchTopic = %q, want %q", got, "agent-1.s4t_invoke")
	}
}

func TestProcedureFQN(t *testing.T) {
	got := ProcedureFQN("b-1", "PluginCall")
	if got != "iotronic.b-1.PluginCall" {
		t.Errorf("ProcedureFQN = %q, want %q", got, "iotronic.b-1.PluginCall")
	}
}
