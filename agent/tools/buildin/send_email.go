package buildin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/tools"
	gomail "github.com/wneessen/go-mail"
)

const draftEmailPrompt = "Write the body of an email following the instruction. Output only the body text, no subject line and no placeholders."

var ErrMailNotConfigured = errors.New("email transport is not configured")

// Email is one outgoing message.
type Email struct {
	To      []string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, email Email) error
}

type sendEmailInput struct {
	To          string `json:"to" jsonschema_description:"Recipient address; separate several with commas."`
	Subject     string `json:"subject" jsonschema_description:"Subject line."`
	Body        string `json:"body,omitempty" jsonschema_description:"Full email body. Leave empty to have it drafted from instruction."`
	Instruction string `json:"instruction,omitempty" jsonschema_description:"What the email should say, used to draft the body."`
}

func NewSendEmailTool(model llm.Generator, sender Sender) tools.Tool {
	return tools.New(
		"send_email",
		func(ctx context.Context, args string) (string, error) {
			var input sendEmailInput
			if err := tools.DecodeArgs(args, &input); err != nil {
				return "", err
			}
			to, err := parseRecipients(input.To)
			if err != nil {
				return "", err
			}
			body := strings.TrimSpace(input.Body)
			if body == "" && strings.TrimSpace(input.Instruction) != "" && model != nil {
				body, err = model.Generate(llm.WithoutCallbacks(ctx), draftEmailPrompt, input.Instruction)
				if err != nil {
					return "", fmt.Errorf("draft email: %w", err)
				}
			}
			if body == "" {
				return "", fmt.Errorf("body or instruction is required")
			}
			subject := strings.TrimSpace(input.Subject)
			if subject == "" {
				subject = "(no subject)"
			}
			if sender == nil {
				return "", ErrMailNotConfigured
			}
			if err := sender.Send(ctx, Email{To: to, Subject: subject, Body: body}); err != nil {
				return "", fmt.Errorf("send email: %w", err)
			}
			return fmt.Sprintf("Email %q sent to %s.", subject, strings.Join(to, ", ")), nil
		},
		tools.WithDescription("Send an email. Requires the recipient address and either the body or an instruction describing what to write."),
		tools.WithParameters(tools.GenerateSchema[sendEmailInput]()),
	)
}

func parseRecipients(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	list, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", raw, err)
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out, nil
}

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender returns a nil Sender when no host is configured so the tool
// reports ErrMailNotConfigured instead of failing at startup.
func NewSMTPSender(cfg SMTPConfig) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(email.To...); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, email.Body)

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
