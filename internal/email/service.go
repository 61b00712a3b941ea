package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"calpay/internal/logger"
	"calpay/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey       = "emails"
	failedQueueKey = "emails:failed"
	maxTries       = 3
)

type EmailJob struct {
	Type    string    `json:"type"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// BookingNotice carries what every booking email needs to render.
type BookingNotice struct {
	Title          string
	StartTime      time.Time
	EndTime        time.Time
	TimeZone       string
	AttendeeName   string
	AttendeeEmail  string
	OrganizerName  string
	OrganizerEmail string
}

type Service struct {
	redis    *redis.Client
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
}

func New(rdb *redis.Client, fromEmail, fromName, smtpHost, smtpPort, smtpUser, smtpPass string) *Service {
	return &Service{
		redis:    rdb,
		from:     fromEmail,
		fromName: fromName,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		smtpUser: smtpUser,
		smtpPass: smtpPass,
	}
}

func (s *Service) Send(ctx context.Context, to, name, subject, body string) error {
	return s.enqueue(ctx, "generic", to, name, subject, body)
}

func (s *Service) enqueue(ctx context.Context, emailType, to, name, subject, body string) error {
	job := EmailJob{
		Type:    emailType,
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		logger.Error("failed to marshal email job", "error", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Error("failed to queue email", "to", to, "type", emailType, "error", err)
		metrics.RecordEmail(emailType, "queue_failed")
		return err
	}

	metrics.RecordEmail(emailType, "queued")
	logger.Info("email queued", "type", emailType, "subject", subject, "to", to)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("bad email job payload", "error", err)
		return
	}

	job.Tries++
	logger.Debug("sending email", "to", job.To, "attempt", job.Tries)
	if err := s.sendNow(job); err != nil {
		logger.Error("failed to send email", "to", job.To, "attempt", job.Tries, "error", err)

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
		} else {
			s.saveFailed(job, err)
		}
		return
	}

	metrics.RecordEmail(job.Type, "sent")
	logger.Info("email sent", "to", job.To, "type", job.Type)
}

func (s *Service) sendNow(job EmailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job EmailJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
	metrics.RecordEmail(job.Type, "failed")
	logger.Error("email moved to failed queue", "to", job.To, "tries", job.Tries)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	metrics.EmailQueueLength.Set(float64(length))
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

// SendBookingConfirmation notifies both the attendee and the organizer.
func (s *Service) SendBookingConfirmation(ctx context.Context, n BookingNotice) error {
	when := formatWhen(n.StartTime, n.TimeZone)

	attendeeBody := fmt.Sprintf(`Hi %s,

Your booking is confirmed!

What: %s
When: %s
With: %s

- Cal Payments`, n.AttendeeName, n.Title, when, n.OrganizerName)

	if err := s.enqueue(ctx, "booking_confirmation", n.AttendeeEmail, n.AttendeeName, "Confirmed: "+n.Title, attendeeBody); err != nil {
		return err
	}

	organizerBody := fmt.Sprintf(`Hi %s,

A new event has been scheduled.

What: %s
When: %s
Attendee: %s <%s>

- Cal Payments`, n.OrganizerName, n.Title, when, n.AttendeeName, n.AttendeeEmail)

	return s.enqueue(ctx, "organizer_confirmation", n.OrganizerEmail, n.OrganizerName, "New event: "+n.Title, organizerBody)
}

// SendBookingRequest asks the organizer to confirm and tells the attendee the booking is pending.
func (s *Service) SendBookingRequest(ctx context.Context, n BookingNotice) error {
	when := formatWhen(n.StartTime, n.TimeZone)

	organizerBody := fmt.Sprintf(`Hi %s,

%s has requested a booking that needs your confirmation.

What: %s
When: %s

- Cal Payments`, n.OrganizerName, n.AttendeeName, n.Title, when)

	if err := s.enqueue(ctx, "organizer_request", n.OrganizerEmail, n.OrganizerName, "Action required: "+n.Title, organizerBody); err != nil {
		return err
	}

	attendeeBody := fmt.Sprintf(`Hi %s,

Your booking has been submitted and is waiting for %s to confirm it.

What: %s
When: %s

- Cal Payments`, n.AttendeeName, n.OrganizerName, n.Title, when)

	return s.enqueue(ctx, "attendee_request", n.AttendeeEmail, n.AttendeeName, "Submitted: "+n.Title, attendeeBody)
}

func (s *Service) SendAwaitingPayment(ctx context.Context, n BookingNotice, paymentLink string, amount int64, currency string) error {
	body := fmt.Sprintf(`Hi %s,

Your booking is reserved and awaiting payment.

What: %s
When: %s
Amount: %s

Complete your payment here: %s

- Cal Payments`, n.AttendeeName, n.Title, formatWhen(n.StartTime, n.TimeZone), FormatAmount(amount, currency), paymentLink)

	return s.enqueue(ctx, "awaiting_payment", n.AttendeeEmail, n.AttendeeName, "Awaiting payment: "+n.Title, body)
}

// Currencies whose Stripe minor unit is not a hundredth.
var currencyExponent = map[string]int{
	"bif": 0, "clp": 0, "djf": 0, "gnf": 0, "jpy": 0, "kmf": 0, "krw": 0, "mga": 0,
	"pyg": 0, "rwf": 0, "ugx": 0, "vnd": 0, "vuv": 0, "xaf": 0, "xof": 0, "xpf": 0,
	"bhd": 3, "jod": 3, "kwd": 3, "omr": 3, "tnd": 3,
}

// FormatAmount renders minor units, e.g. 2550 usd -> "25.50 USD" and
// 5000 jpy -> "5000 JPY".
func FormatAmount(amount int64, currency string) string {
	code := strings.ToUpper(currency)
	exp, ok := currencyExponent[strings.ToLower(currency)]
	if !ok {
		exp = 2
	}

	sign := ""
	// Stay in uint64 so the smallest int64 negates cleanly.
	abs := uint64(amount)
	if amount < 0 {
		sign = "-"
		abs = -abs
	}

	if exp == 0 {
		return fmt.Sprintf("%s%d %s", sign, abs, code)
	}
	unit := uint64(1)
	for i := 0; i < exp; i++ {
		unit *= 10
	}
	return fmt.Sprintf("%s%d.%0*d %s", sign, abs/unit, exp, abs%unit, code)
}

func formatWhen(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	return t.In(loc).Format("Jan 2, 2006 at 3:04 PM MST")
}
