package mail

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/pkg/logger"
)

// silentSMTPServer accepts connections and never sends the SMTP greeting,
// so every dial hangs until the client gives up.
func silentSMTPServer(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	return ln.Addr().(*net.TCPAddr).Port
}

func TestSendTimesOut(t *testing.T) {
	port := silentSMTPServer(t)

	transport := NewSMTPTransport(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    port,
		Timeout: 100 * time.Millisecond,
	}, logger.New(nil))

	start := time.Now()
	correlationID, err := transport.Send(context.Background(), &Message{
		From:     "noreply@example.com",
		To:       "a@example.com",
		Subject:  "hello",
		TextBody: "hello",
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, correlationID)
	assert.Less(t, elapsed, 2*time.Second, "send must give up at the configured timeout")
}

func TestMessageFromLog(t *testing.T) {
	cc, err := json.Marshal([]string{"cc@example.com"})
	require.NoError(t, err)
	bcc, err := json.Marshal([]string{"bcc@example.com"})
	require.NoError(t, err)

	log := &model.DeliveryLog{
		TemplateKey: "user.welcome",
		ToAddress:   "a@example.com",
		FromAddress: "noreply@example.com",
		CC:          cc,
		BCC:         bcc,
		Subject:     "Hi Ann",
		HTMLBody:    "<p>Hi Ann</p>",
		TextBody:    "Hi Ann",
	}

	msg := MessageFromLog(log, "Notify")

	assert.Equal(t, "noreply@example.com", msg.From)
	assert.Equal(t, "Notify", msg.FromName)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, []string{"cc@example.com"}, msg.CC)
	assert.Equal(t, []string{"bcc@example.com"}, msg.BCC)
	assert.Equal(t, "Hi Ann", msg.Subject)
	assert.Equal(t, "<p>Hi Ann</p>", msg.HTMLBody)
	assert.Equal(t, "Hi Ann", msg.TextBody)
}

func TestMessageFromLogCorruptRecipientLists(t *testing.T) {
	log := &model.DeliveryLog{
		ToAddress: "a@example.com",
		CC:        json.RawMessage(`{not json`),
		BCC:       json.RawMessage(`42`),
		Subject:   "Hi",
	}

	msg := MessageFromLog(log, "")

	assert.Equal(t, "a@example.com", msg.To)
	assert.Empty(t, msg.CC)
	assert.Empty(t, msg.BCC)
}
