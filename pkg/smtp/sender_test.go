package smtp

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"relaydesk-backend/pkg/mailbox"
)

func TestHostFromIMAP(t *testing.T) {
	cases := map[string]string{
		"imap.example.com": "smtp.example.com",
		"mail.example.com": "mail.example.com",
		"":                 "",
	}
	for in, want := range cases {
		if got := HostFromIMAP(in); got != want {
			t.Errorf("HostFromIMAP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("Support@Example.com")
	if !strings.HasSuffix(id, "@Example.com") {
		t.Errorf("expected sender domain in %q", id)
	}
	if NewMessageID("support@example.com") == NewMessageID("support@example.com") {
		t.Error("expected unique ids")
	}
	if !strings.HasSuffix(NewMessageID("nobody"), "@localhost") {
		t.Error("expected localhost fallback")
	}
}

// plainServer greets and answers EHLO without advertising STARTTLS.
func plainServer(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		r := bufio.NewReader(conn)
		conn.Write([]byte("220 localhost ESMTP\r\n"))
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				conn.Write([]byte("250 localhost\r\n"))
			case strings.HasPrefix(cmd, "QUIT"):
				conn.Write([]byte("221 bye\r\n"))
				return
			default:
				conn.Write([]byte("502 not implemented\r\n"))
			}
		}
	}()

	h, p, _ := net.SplitHostPort(ln.Addr().String())
	n, _ := strconv.Atoi(p)
	return h, n
}

func TestSend_RequiresStartTLS(t *testing.T) {
	host, port := plainServer(t)
	s := NewSender(2 * time.Second)

	_, err := s.Send(context.Background(), Account{Host: host, Port: port, Username: "u", Password: "p"}, mailbox.Outgoing{
		From: "support@acme.io", To: "ana@example.com", Subject: "Re: Hi", Body: "Hello",
	})
	if err == nil || !strings.Contains(err.Error(), "failed to start tls") {
		t.Errorf("expected tls error, got %v", err)
	}
}

func TestSend_UnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	_, err = NewSender(time.Second).Send(context.Background(), Account{Host: "127.0.0.1", Port: addr.Port}, mailbox.Outgoing{
		From: "support@acme.io", To: "ana@example.com", Body: "Hello",
	})
	if err == nil || !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("expected connect error, got %v", err)
	}
}
