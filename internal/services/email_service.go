package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BradenHooton/authgate/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the subset of the SES client used to send mail
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService delivers one-time codes and verification links using AWS SES
type AWSSESEmailService struct {
	sesClient   sesAPI
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service. baseURL is the
// frontend origin that serves the verify-email page.
func NewAWSSESEmailService(ctx context.Context, region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendOTPEmail emails a sign-in code
func (s *AWSSESEmailService) SendOTPEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 6px; font-weight: bold; text-align: center; padding: 20px; background-color: #f8f9fa; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Your sign-in code</h1>
        <p>Enter this code to finish signing in:</p>
        <div class="code">%s</div>
        <p>The code expires in %d minutes and can be used once.</p>
        <p><strong>Didn't try to sign in?</strong><br>
        Someone may know your password. Change it and review your account security.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code, minutes)

	textBody := fmt.Sprintf(`Your sign-in code

Enter this code to finish signing in: %s

The code expires in %d minutes and can be used once.

Didn't try to sign in? Someone may know your password. Change it and review your account security.
`, code, minutes)

	return s.send(ctx, to, "Your sign-in code", htmlBody, textBody, "otp")
}

// SendVerificationEmail emails a link that confirms ownership of the address
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, url.QueryEscape(token))
	expires := expiresAt.UTC().Format("Jan 2, 2006 15:04 MST")

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Confirm your email address</h1>
        <p>Confirming your address lets us reach you about sign-ins and raises your account security score.</p>
        <a href="%s" class="button">Verify Email</a>
        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all;">%s</p>
        <p>This link expires %s and can be used once.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, link, link, expires)

	textBody := fmt.Sprintf(`Confirm your email address

Open this link to confirm your address:
%s

This link expires %s and can be used once.

If you didn't create an account, you can ignore this email.
`, link, expires)

	return s.send(ctx, to, "Confirm your email address", htmlBody, textBody, "verification")
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, htmlBody, textBody, kind string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", logger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", logger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailSender writes codes and links to the log instead of sending mail.
// Used in development when no SES sender address is configured.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender creates a new LogEmailSender
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

// SendOTPEmail logs the code at debug level
func (s *LogEmailSender) SendOTPEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	s.logger.DebugContext(ctx, "otp email (not sent)",
		slog.String("email", logger.SanitizedEmail(to)),
		slog.String("code", code),
		slog.Duration("ttl", ttl))
	return nil
}

// SendVerificationEmail logs the token at debug level
func (s *LogEmailSender) SendVerificationEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	s.logger.DebugContext(ctx, "verification email (not sent)",
		slog.String("email", logger.SanitizedEmail(to)),
		slog.String("token", token),
		slog.Time("expires_at", expiresAt))
	return nil
}
