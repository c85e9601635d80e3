package service

import (
	"context"
	"log"
	"time"
)

// JobService hosts the cron-driven workers: the notification delivery drain
// and the payment reconciler. Each run gets its own bounded context.
type JobService struct {
	Sender   *SenderService
	Payments *PaymentService
}

func NewJobService(sender *SenderService, payments *PaymentService) *JobService {
	return &JobService{Sender: sender, Payments: payments}
}

const jobTimeout = 30 * time.Second

// DispatchNotifications drains one batch of pending notifications.
func (s *JobService) DispatchNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Sender.DispatchPending(ctx); err != nil {
		log.Printf("Cron job: notification dispatch failed: %v", err)
	}
}

// ReconcilePayments fulfils paid sessions whose webhook was missed.
func (s *JobService) ReconcilePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Payments.Reconcile(ctx); err != nil {
		log.Printf("Cron job: payment reconcile failed: %v", err)
	}
}
