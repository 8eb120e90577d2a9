package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	otpCodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_codes_issued_total",
		Help: "Signup codes issued, by trigger",
	}, []string{"trigger"})

	otpVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verifications_total",
		Help: "Signup code verification attempts, by result",
	}, []string{"result"})

	emailDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_email_delivery_failures_total",
		Help: "Signup code emails that could not be handed to the provider",
	})

	chatRoomsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_rooms_opened_total",
		Help: "open-or-get calls, by whether a room was created",
	}, []string{"created"})

	chatMessagesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_posted_total",
		Help: "Chat messages stored, by kind",
	}, []string{"kind"})

	forbiddenAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forbidden_attempts_total",
		Help: "Requests refused for lack of authorization, by operation",
	}, []string{"operation"})

	reviewsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_submitted_total",
		Help: "Reviews created or updated",
	})
)
