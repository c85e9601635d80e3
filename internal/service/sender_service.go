package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"chargeslot/internal/db"
)

// PendingNotifications is the sink side the delivery worker drains.
type PendingNotifications interface {
	ListPending(ctx context.Context, limit int) ([]db.Notification, error)
	MarkSent(ctx context.Context, id string) error
}

// SenderService is the out-of-band delivery worker: it polls for pending
// notification records, sends them via SendGrid and Twilio, and flips
// delivered rows to sent. A failed send leaves the row pending for the next
// run.
type SenderService struct {
	Notifications PendingNotifications
}

func NewSenderService(notifications PendingNotifications) *SenderService {
	return &SenderService{Notifications: notifications}
}

const dispatchBatchSize = 50

// DispatchPending drains one batch of pending notifications.
func (s *SenderService) DispatchPending(ctx context.Context) error {
	batch, err := s.Notifications.ListPending(ctx, dispatchBatchSize)
	if err != nil {
		return fmt.Errorf("listing pending notifications: %w", err)
	}
	for _, n := range batch {
		var sendErr error
		switch n.Kind {
		case db.NotificationEmail:
			sendErr = sendEmailWithSendGrid(n.Recipient, n.Subject, n.Message)
		case db.NotificationSMS:
			sendErr = sendSMS(n.Recipient, n.Message)
		default:
			log.Printf("ALERT: notification %s has unknown kind %q, leaving pending", n.ID, n.Kind)
			continue
		}
		if sendErr != nil {
			log.Printf("ALERT: delivery of notification %s to %s failed: %v", n.ID, n.Recipient, sendErr)
			continue
		}
		if err := s.Notifications.MarkSent(ctx, n.ID); err != nil {
			log.Printf("ALERT: notification %s delivered but not marked sent: %v", n.ID, err)
		}
	}
	return nil
}

func sendEmailWithSendGrid(toEmail, subject, body string) error {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is not set")
	}
	fromEmail := os.Getenv("SENDGRID_FROM_EMAIL")
	if fromEmail == "" {
		return fmt.Errorf("SENDGRID_FROM_EMAIL is not set")
	}
	fromName := os.Getenv("SENDGRID_FROM_NAME")
	if fromName == "" {
		fromName = "ChargeSlot"
	}

	from := mail.NewEmail(fromName, fromEmail)
	to := mail.NewEmail(toEmail, toEmail)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	client := sendgrid.NewSendClient(apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sending email via SendGrid: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("SendGrid returned status %d: %s", response.StatusCode, response.Body)
	}
	log.Printf("Email sent to %s (subject: %s)", toEmail, subject)
	return nil
}

func sendSMS(toNumber, messageBody string) error {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	fromNumber := os.Getenv("TWILIO_FROM_NUMBER")
	if accountSid == "" || authToken == "" || fromNumber == "" {
		return fmt.Errorf("Twilio credentials are not fully configured")
	}
	if !strings.HasPrefix(toNumber, "+") {
		log.Printf("WARNING: destination number %q is not E.164, the SMS may fail", toNumber)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(fromNumber)
	params.SetBody(messageBody)

	resp, err := client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("sending SMS via Twilio: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		log.Printf("SMS sent to %s (sid %s)", toNumber, *resp.Sid)
	}
	return nil
}
