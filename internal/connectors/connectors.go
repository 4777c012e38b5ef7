// Package connectors pulls raw messages from a mailbox and stores them for
// the order pipeline.
package connectors

import (
	"context"
	"fmt"
	"strings"

	"mailorder/internal"
	"mailorder/internal/config"
	gmailconnector "mailorder/internal/connectors/gmail"
	imapconnector "mailorder/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for provider: imap, gmail, or dir (label is a
// directory of .eml files).
func New(cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "imap":
		return imapconnector.NewConnector(cfg)
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "dir":
		return DirConnector{}, nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
