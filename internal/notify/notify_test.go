package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
)

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	sender := NewSMTPSender(SMTPConfig{
		Host: "mail.example.com",
		Port: 587,
		From: "noreply@tarodan.example",
	})
	sender.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := sender.Send(context.Background(), Message{
		Title: "Order shipped",
		Body:  "Your order is on the way.",
		To:    Recipient{UserID: "u1", Email: "buyer@example.com"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "noreply@tarodan.example" || len(gotTo) != 1 || gotTo[0] != "buyer@example.com" {
		t.Fatalf("addressing = %q -> %v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"Subject: Order shipped\r\n", "Your order is on the way."} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSMTPSenderRequiresAddress(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Port: 25})
	err := sender.Send(context.Background(), Message{To: Recipient{UserID: "u1"}})
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("err = %v, want ErrNoRecipient", err)
	}
}

func TestExpoSender(t *testing.T) {
	var got expoPushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewExpoSender(srv.URL)
	err := sender.Send(context.Background(), Message{
		Title: "Trade accepted",
		Body:  "Your trade was accepted.",
		Data:  map[string]string{"tradeId": "trd_1"},
		To:    Recipient{UserID: "u1", PushToken: "ExponentPushToken[abc]"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "ExponentPushToken[abc]" || got.Title != "Trade accepted" {
		t.Fatalf("request = %+v", got)
	}
	if got.Data["tradeId"] != "trd_1" {
		t.Fatalf("data = %v", got.Data)
	}
}

func TestExpoSenderReportsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewExpoSender(srv.URL)
	err := sender.Send(context.Background(), Message{
		To: Recipient{UserID: "u1", PushToken: "tok"},
	})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestHTTPSMSSender(t *testing.T) {
	var got smsRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewHTTPSMSSender(SMSConfig{Endpoint: srv.URL, APIKey: "sk_test", Sender: "TARODAN"})
	err := sender.Send(context.Background(), Message{
		Title: "Payment received",
		To:    Recipient{UserID: "u1", PhoneNumber: "+15551234567"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "+15551234567" || got.From != "TARODAN" || got.Body != "Payment received" {
		t.Fatalf("request = %+v", got)
	}
	if gotAuth != "Bearer sk_test" {
		t.Fatalf("auth = %q", gotAuth)
	}
}

func TestSendersRequireRecipientAddresses(t *testing.T) {
	ctx := context.Background()
	if err := NewExpoSender("").Send(ctx, Message{To: Recipient{UserID: "u1"}}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("push err = %v", err)
	}
	if err := NewHTTPSMSSender(SMSConfig{Endpoint: "http://127.0.0.1:0"}).Send(ctx, Message{To: Recipient{UserID: "u1"}}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("sms err = %v", err)
	}
}
