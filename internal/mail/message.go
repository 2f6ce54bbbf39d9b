package mail

import (
	"encoding/json"

	"github.com/jwalitptl/notify-api/internal/model"
)

// MessageFromLog rebuilds the outbound message from the frozen content of a
// delivery log. CC/BCC are JSON arrays written by the dispatcher; if one is
// corrupt the message degrades to no copies rather than failing the send.
func MessageFromLog(log *model.DeliveryLog, fromName string) *Message {
	var cc, bcc []string
	if err := json.Unmarshal(log.CC, &cc); err != nil {
		cc = nil
	}
	if err := json.Unmarshal(log.BCC, &bcc); err != nil {
		bcc = nil
	}

	return &Message{
		From:     log.FromAddress,
		FromName: fromName,
		To:       log.ToAddress,
		CC:       cc,
		BCC:      bcc,
		Subject:  log.Subject,
		HTMLBody: log.HTMLBody,
		TextBody: log.TextBody,
	}
}
