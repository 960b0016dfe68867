package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestBuildMessage_SetsHeaders(t *testing.T) {
	m, err := buildMessage(Message{
		From:    "noreply@demo.com",
		To:      "alice@example.com",
		Subject: "Password Reset Request",
		Body:    "visit the link",
	})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()

	for _, want := range []string{"noreply@demo.com", "alice@example.com", "Password Reset Request", "visit the link"} {
		if !strings.Contains(raw, want) {
			t.Errorf("メッセージに %q が含まれていない:\n%s", want, raw)
		}
	}
}

func TestBuildMessage_InvalidAddress(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"送信元が不正", Message{From: "not an address", To: "alice@example.com"}},
		{"宛先が不正", Message{From: "noreply@demo.com", To: "@@"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildMessage(tt.msg); err == nil {
				t.Error("不正なアドレスでエラーにならなかった")
			}
		})
	}
}

func TestLogSender_LogsMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(newTestLogger(&buf))

	err := s.Send(context.Background(), Message{
		From:    "noreply@demo.com",
		To:      "alice@example.com",
		Subject: "Password Reset Request",
		Body:    "http://localhost/reset_password/abc",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログがJSONではない: %v\n%s", err, buf.String())
	}
	if entry["to"] != "alice@example.com" {
		t.Errorf("to = %v, want %q", entry["to"], "alice@example.com")
	}
	if entry["body"] != "http://localhost/reset_password/abc" {
		t.Errorf("body = %v", entry["body"])
	}
}

func TestNewSMTPSender_CreatesClient(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "user", Password: "pass"}, newTestLogger(&buf))
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	if s == nil {
		t.Fatal("expected non-nil sender")
	}
}

func TestNewSMTPSender_EmptyHost(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewSMTPSender(SMTPConfig{Port: 587}, newTestLogger(&buf)); err == nil {
		t.Error("ホスト未指定でエラーにならなかった")
	}
}
