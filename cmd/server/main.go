package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/stripe/stripe-go/v82"

	"chargeslot/internal/api"
	"chargeslot/internal/auth"
	"chargeslot/internal/repository"
	"chargeslot/internal/service"
)

const defaultLocations = "EDAPALLY,KAKKANAD,VYTTILA"

func main() {
	godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	database, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := database.Ping(); err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	slotRepo := repository.NewSlotRepo(database)
	bookingRepo := repository.NewBookingRepo(database, slotRepo)
	queueRepo := repository.NewQueueRepo(database)
	notificationRepo := repository.NewNotificationRepo(database)
	paymentRepo := repository.NewPaymentRepo(database)
	adminRepo := repository.NewAdminAuthRepository(database)

	dispatcher := service.NewDispatcher(notificationRepo, queueRepo)
	bookingSvc := service.NewBookingService(slotRepo, bookingRepo, queueRepo, dispatcher)
	paymentSvc := service.NewPaymentService(paymentRepo, service.NewStripeService(), bookingSvc)
	senderSvc := service.NewSenderService(notificationRepo)
	adminAuthSvc := service.NewAdminAuthService(adminRepo)
	jobSvc := service.NewJobService(senderSvc, paymentSvc)

	locations := strings.Split(envOr("CHARGING_LOCATIONS", defaultLocations), ",")
	for i := range locations {
		locations[i] = strings.TrimSpace(locations[i])
	}
	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := bookingSvc.Bootstrap(bootCtx, locations); err != nil {
		log.Fatalf("Failed to bootstrap slot grid: %v", err)
	}
	cancel()

	c := cron.New()
	c.AddFunc("@every 30s", jobSvc.DispatchNotifications)
	c.AddFunc("@every 2m", jobSvc.ReconcilePayments)
	c.Start()
	defer c.Stop()

	bookingHandler := api.NewBookingHandler(bookingSvc, paymentSvc)
	adminHandler := api.NewAdminHandler(bookingSvc)
	adminAuthHandler := api.NewAdminAuthHandler(adminAuthSvc)
	stripeHandler := api.NewStripeWebhookHandler(os.Getenv("STRIPE_WEBHOOK_SECRET"), paymentSvc)

	r := mux.NewRouter()

	// Public endpoints
	r.HandleFunc("/api/availability", bookingHandler.CheckAvailability).Methods("POST")
	r.HandleFunc("/api/slots", bookingHandler.ListSlots).Methods("GET")
	r.HandleFunc("/api/slots/count", bookingHandler.SlotBookingCount).Methods("GET")
	r.HandleFunc("/api/webhooks/stripe", stripeHandler.HandleWebhook).Methods("POST")
	r.HandleFunc("/admin/login", adminAuthHandler.Login).Methods("POST")

	// User endpoints (JWT protected)
	user := r.PathPrefix("/api").Subrouter()
	user.Use(auth.UserAuthMiddleware)
	user.HandleFunc("/bookings", bookingHandler.CreateBooking).Methods("POST")
	user.HandleFunc("/bookings", bookingHandler.ListBookings).Methods("GET")
	user.HandleFunc("/bookings/{id}", bookingHandler.CancelBooking).Methods("DELETE")
	user.HandleFunc("/bookings/{id}/payment", bookingHandler.StartPayment).Methods("POST")
	user.HandleFunc("/waitlist", bookingHandler.RequestWaitlist).Methods("POST")

	// Admin endpoints (admin role required)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.AdminAuthMiddleware)
	admin.HandleFunc("/register", adminAuthHandler.Register).Methods("POST")
	admin.HandleFunc("/bookings", adminHandler.ListBookings).Methods("GET")
	admin.HandleFunc("/bookings/{id}/fulfil", adminHandler.FulfilBooking).Methods("POST")
	admin.HandleFunc("/queue", adminHandler.ListQueue).Methods("GET")
	admin.HandleFunc("/slots", adminHandler.SetSlotAvailability).Methods("PUT")

	redisClient := auth.NewRedisClient()
	r.Use(auth.RateLimit(redisClient, 100, time.Minute))

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{envOr("CORS_ORIGIN", "*")}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	port := envOr("PORT", "8080")
	log.Printf("Server running on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, handlers.LoggingHandler(os.Stdout, cors(r))))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
