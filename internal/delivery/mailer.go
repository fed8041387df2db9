package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/wneessen/go-mail"
)

// ErrMailerDisabled is returned when no SMTP host is configured.
var ErrMailerDisabled = errors.New("smtp is not configured")

var resultTemplate = template.Must(template.New("result").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .pass { color: #1e8c3c; font-weight: bold; }
        .fail { color: #c82828; font-weight: bold; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>{{.Subject}} - Result</h2>
        <p>Hi {{.Name}},</p>
        <p>You scored <strong>{{printf "%.2f" .Result.Score}}</strong> out of {{printf "%.2f" .Result.MaxScore}}
           ({{printf "%.2f" .Result.Percentage}}%).
           {{if .Result.Pass}}<span class="pass">Passed</span>{{else}}<span class="fail">Not passed</span>{{end}}</p>
        <p>Correct: {{.Result.Correct}} &middot; Wrong: {{.Result.Wrong}} &middot; Unattempted: {{.Result.Unattempted}}</p>
        <p>The full review is attached as a PDF.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply.</p>
        </div>
    </div>
</body>
</html>
`))

type resultMail struct {
	Subject string
	Name    string
	Result  model.ScoreResult
}

// RenderBody renders the HTML body of a result email.
func RenderBody(sub model.Submission) (string, error) {
	var body bytes.Buffer
	err := resultTemplate.Execute(&body, resultMail{
		Subject: sub.SubjectName,
		Name:    sub.UserName,
		Result:  sub.Result,
	})
	if err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return body.String(), nil
}

// Mailer sends result reports over SMTP.
type Mailer struct {
	cfg config.SMTPConfig
	log zerolog.Logger
}

// NewMailer creates a Mailer. An empty host disables sending.
func NewMailer(cfg config.SMTPConfig, log zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log.With().Str("component", "mailer").Logger()}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool { return m.cfg.Host != "" }

// Send renders the report for job and emails it to the student.
func (m *Mailer) Send(ctx context.Context, job model.DeliveryJob) error {
	if !m.Enabled() {
		return ErrMailerDisabled
	}
	sub := job.Submission

	pdf, err := RenderReport(job)
	if err != nil {
		return err
	}

	msg, err := m.buildMessage(sub, pdf)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().
		Str("attempt_id", sub.AttemptID.String()).
		Str("to", sub.Email).
		Msg("Result email sent")
	return nil
}

func (m *Mailer) buildMessage(sub model.Submission, pdf []byte) (*mail.Msg, error) {
	body, err := RenderBody(sub)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(sub.Email); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s - Your result", sub.SubjectName))
	msg.SetBodyString(mail.TypeTextHTML, body)
	msg.AttachReadSeeker(FileName(sub.SubjectName), bytes.NewReader(pdf),
		mail.WithFileContentType(mail.ContentType("application/pdf")))
	return msg, nil
}
