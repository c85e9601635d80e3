package service

import (
	"context"
	"fmt"
	"log"

	"chargeslot/internal/db"
	"chargeslot/internal/entities"
)

const slotAvailableSubject = "EV Charging Slot Available!"

// NotificationSink is the slice of the store the dispatcher writes into.
// Writes are fire-and-forget: the delivery worker drains pending records on
// its own schedule, and its failures are invisible here.
type NotificationSink interface {
	Enqueue(ctx context.Context, n *db.Notification) (string, error)
}

// WaitlistRemover removes a matched entry from the queue.
type WaitlistRemover interface {
	Remove(ctx context.Context, id string) error
}

// Dispatcher turns a waitlist match into outbound notification records.
type Dispatcher struct {
	Sink  NotificationSink
	Queue WaitlistRemover
}

func NewDispatcher(sink NotificationSink, queue WaitlistRemover) *Dispatcher {
	return &Dispatcher{Sink: sink, Queue: queue}
}

// QueueEmail appends a pending email record and returns its id.
func (d *Dispatcher) QueueEmail(ctx context.Context, to, subject, message string) (string, error) {
	return d.Sink.Enqueue(ctx, &db.Notification{
		Kind:      db.NotificationEmail,
		Recipient: to,
		Subject:   subject,
		Message:   message,
	})
}

// QueueSMS appends a pending SMS record and returns its id.
func (d *Dispatcher) QueueSMS(ctx context.Context, to, message string) (string, error) {
	return d.Sink.Enqueue(ctx, &db.Notification{
		Kind:      db.NotificationSMS,
		Recipient: to,
		Message:   message,
	})
}

// NotifyMatch queues the outbound messages for a matched entry and removes
// it from the waitlist. Email and SMS are independent: the absence or
// failure of one channel does not block the other. The entry is only kept
// when every channel failed, so the alert is not silently lost.
func (d *Dispatcher) NotifyMatch(ctx context.Context, entry *db.QueueEntry, slot entities.SlotKey, freed entities.TimeRange) error {
	message := fmt.Sprintf(
		"A slot is now available at %s for %s with %s charging at %s!",
		slot.Location, slot.VehicleType, slot.ChargingType, freed.String(),
	)

	var queued int
	var firstErr error
	if entry.UserEmail != "" {
		if _, err := d.QueueEmail(ctx, entry.UserEmail, slotAvailableSubject, message); err != nil {
			log.Printf("ALERT: could not queue email for waitlisted user %s: %v", entry.UserID, err)
			firstErr = err
		} else {
			queued++
		}
	}
	if entry.PhoneNumber != "" {
		if _, err := d.QueueSMS(ctx, entry.PhoneNumber, message); err != nil {
			log.Printf("ALERT: could not queue SMS for waitlisted user %s: %v", entry.UserID, err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			queued++
		}
	}
	if queued == 0 && firstErr != nil {
		return firstErr
	}

	if err := d.Queue.Remove(ctx, entry.ID); err != nil {
		return fmt.Errorf("removing matched waitlist entry %s: %w", entry.ID, err)
	}
	log.Printf("Waitlisted user %s notified about %s and removed from queue", entry.UserID, slot)
	return nil
}
