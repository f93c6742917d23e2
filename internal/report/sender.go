package report

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/logger"
)

// Message is an outbound report email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers report messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
}

// NewSMTPSender creates a sender for the given relay address
// (host:port). Auth may be nil for an open relay.
func NewSMTPSender(addr string, auth smtp.Auth) *SMTPSender {
	return &SMTPSender{addr: addr, auth: auth}
}

// Send delivers one message.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if msg.From == "" || msg.To == "" {
		return errors.New("message requires both sender and recipient")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", msg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", msg.To)
	fmt.Fprintf(&sb, "Subject: %s\r\n", msg.Subject)
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)

	if err := smtp.SendMail(s.addr, s.auth, msg.From, []string{msg.To}, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to send report mail: %w", err)
	}
	return nil
}

// PageLister resolves page owners for per-page notifications. Implemented
// by pagetree.Client.
type PageLister interface {
	LivePages(ctx context.Context, siteID string) ([]domain.Page, error)
}

// Mailer builds a scan's report and emails it per the site's preferences.
type Mailer struct {
	builder *Builder
	sender  Sender
	pages   PageLister
	log     logger.Interface
}

// NewMailer creates a report mailer. Pages may be nil when page owners
// should not be notified.
func NewMailer(builder *Builder, sender Sender, pages PageLister, log logger.Interface) *Mailer {
	return &Mailer{builder: builder, sender: sender, pages: pages, log: log}
}

// EmailReport mails the scan's broken-link report when the site has email
// reports enabled: one message per page to the page's owner, plus the full
// report to the configured recipient. Returns the number of messages sent.
func (m *Mailer) EmailReport(ctx context.Context, scanID string, prefs *domain.SitePreferences) (int, error) {
	if !prefs.EmailReports {
		return 0, nil
	}

	if prefs.EmailRecipient == "" {
		m.log.Warn("email reports enabled but no recipient configured", "site_id", prefs.SiteID)
		return 0, nil
	}

	rep, err := m.builder.Build(ctx, scanID)
	if err != nil {
		return 0, err
	}

	m.resolveOwners(ctx, rep)

	sent := 0
	for _, group := range rep.Groups {
		if group.OwnerEmail == "" {
			continue
		}

		msg := Message{
			From:    prefs.EmailSender,
			To:      group.OwnerEmail,
			Subject: rep.PageSubject(group),
			Body:    rep.RenderGroup(group),
		}
		if sendErr := m.sender.Send(ctx, msg); sendErr != nil {
			m.log.Error("failed to mail page owner",
				"scan_id", scanID,
				"page_id", group.PageID,
				"recipient", group.OwnerEmail,
				"error", sendErr,
			)
			continue
		}
		sent++
	}

	msg := Message{
		From:    prefs.EmailSender,
		To:      prefs.EmailRecipient,
		Subject: rep.Subject(),
		Body:    rep.Render(),
	}
	if sendErr := m.sender.Send(ctx, msg); sendErr != nil {
		return sent, sendErr
	}
	sent++

	m.log.Info("report mailed",
		"scan_id", scanID,
		"site_id", prefs.SiteID,
		"recipient", prefs.EmailRecipient,
		"messages", sent,
	)
	return sent, nil
}

// resolveOwners fills in each group's owner address from the content
// store. A lookup failure only disables the per-page messages.
func (m *Mailer) resolveOwners(ctx context.Context, rep *Report) {
	if m.pages == nil {
		return
	}

	pages, err := m.pages.LivePages(ctx, rep.SiteID)
	if err != nil {
		m.log.Warn("failed to resolve page owners", "site_id", rep.SiteID, "error", err)
		return
	}

	owners := make(map[string]string, len(pages))
	for _, page := range pages {
		if page.OwnerEmail != "" {
			owners[page.ID] = page.OwnerEmail
		}
	}

	for i := range rep.Groups {
		if rep.Groups[i].PageID != "" {
			rep.Groups[i].OwnerEmail = owners[rep.Groups[i].PageID]
		}
	}
}
