package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"chargeslot/internal/service"
)

type StripeWebhookHandler struct {
	StripeSecret string
	payments     *service.PaymentService
}

func NewStripeWebhookHandler(stripeSecret string, payments *service.PaymentService) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		StripeSecret: stripeSecret,
		payments:     payments,
	}
}

func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.StripeSecret)
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("Error parsing checkout.session: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := h.payments.CompleteBySession(r.Context(), sess.ID); err != nil {
			// The reconciler retries unprocessed sessions, so a failure
			// here is logged and acknowledged rather than re-delivered.
			log.Printf("ALERT: could not complete payment for session %s: %v", sess.ID, err)
		}
	default:
		log.Printf("Unhandled stripe event type: %s", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}
