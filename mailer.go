package main

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Mailer sends the two notification mails the system produces. Delivery is
// best effort; callers decide whether a failure is fatal.
type Mailer interface {
	SendSigninLink(to, link string) error
	SendReviewRequest(to, title, resourceURL, acceptLink string) error
}

type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	fromName string
	log      logrus.FieldLogger
}

func NewSMTPMailer(host, port, username, password string, logger logrus.FieldLogger) *SMTPMailer {
	return &SMTPMailer{
		addr:     host + ":" + port,
		auth:     smtp.PlainAuth("", username, password, host),
		from:     username,
		fromName: "ecstaticdissolve",
		log:      logger.WithField("component", "mailer"),
	}
}

func (m *SMTPMailer) SendSigninLink(to, link string) error {
	body := signinEmailHTML(link, to)
	return m.send(to, "Join Ecstatic Dissolve!", body)
}

func (m *SMTPMailer) SendReviewRequest(to, title, resourceURL, acceptLink string) error {
	body := reviewRequestEmailHTML(title, resourceURL, strings.SplitN(to, "@", 2)[0], acceptLink)
	return m.send(to, "Resource Review Request", body)
}

func (m *SMTPMailer) send(to, subject, htmlBody string) error {
	msg := strings.Join([]string{
		fmt.Sprintf("From: %q <%s>", m.fromName, m.from),
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		m.log.WithError(err).WithField("to", to).Error("failed to send email")
		return err
	}
	m.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("email sent")
	return nil
}

func signinEmailHTML(signinURL, email string) string {
	now := time.Now().Format("January 02, 2006 15:04")
	return `
    <div style="font-family: Arial, sans-serif; color: #333; padding: 20px;">
      <p>Hello,</p>
      <p>We received a request to sign in to <b>ecstaticdissolve</b> using this email address, at <b>` + now + `</b>.</p>
      <p>If you want to sign in with your <b>` + email + `</b> account, click this link:</p>
      <p style="margin: 20px 0;">
        <a href="` + signinURL + `" style="display: inline-block; padding: 12px 20px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 4px;">Sign in to ecstaticdissolve</a>
      </p>
      <p>If you did not request this link, you can safely ignore this email.</p>
      <p>Thanks,<br><br>Your <b>ecstaticdissolve</b> team</p>
    </div>`
}

func reviewRequestEmailHTML(title, resourceURL, reviewerName, acceptURL string) string {
	return `
    <div style="font-family: Arial, sans-serif; color: #333; padding: 20px;">
      <p>Hello ` + reviewerName + `,</p>
      <p>A new resource was submitted to <b>ecstaticdissolve</b> and is waiting for your review:</p>
      <p><b>` + title + `</b><br><a href="` + resourceURL + `">` + resourceURL + `</a></p>
      <p style="margin: 20px 0;">
        <a href="` + acceptURL + `" style="display: inline-block; padding: 12px 20px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 4px;">Mark as reviewed</a>
      </p>
      <p>Thanks,<br><br>Your <b>ecstaticdissolve</b> team</p>
    </div>`
}
