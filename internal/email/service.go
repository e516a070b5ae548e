package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"proledger/internal/logger"
	"proledger/internal/metrics"
)

const (
	queueKey       = "notifications"
	failedQueueKey = "notifications:failed"
	maxTries       = 3
)

type EmailJob struct {
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Type    string    `json:"type"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
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

func New(fromEmail, fromName, smtpHost, smtpPort, smtpUser, smtpPass, redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		from:     fromEmail,
		fromName: fromName,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		smtpUser: smtpUser,
		smtpPass: smtpPass,
	}
}

func (s *Service) Close() error {
	return s.redis.Close()
}

func (s *Service) Send(ctx context.Context, to, name, subject, body, jobType string) error {
	job := EmailJob{
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Type:    jobType,
		Tries:   0,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Error("failed to queue email", "to", to, "error", err)
		return err
	}
	s.refreshQueueGauge(ctx)

	logger.Info("email queued", "subject", subject, "to", to)
	return nil
}

func (s *Service) SendPurchaseReceipt(ctx context.Context, to, name, packageID string, credits int) error {
	subject := "Your credit purchase receipt"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour purchase of the %s package is complete. %d credits were added to your balance and never expire.\n\nThanks for using ProLedger.",
		name, packageID, credits,
	)
	return s.Send(ctx, to, name, subject, body, "purchase_receipt")
}

func (s *Service) SendLowBalanceWarning(ctx context.Context, to, name string, balance int) error {
	subject := "You're running low on credits"
	body := fmt.Sprintf(
		"Hi %s,\n\nYou have %d credits left. Top up now so you don't miss the next lead.\n\nThanks for using ProLedger.",
		name, balance,
	)
	return s.Send(ctx, to, name, subject, body, "low_balance")
}

// Start drains the queue until the context is cancelled.
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
	s.refreshQueueGauge(ctx)

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("bad email job payload", "error", err)
		return
	}

	job.Tries++
	if err := s.sendNow(job); err != nil {
		logger.Error("failed to send email", "to", job.To, "attempt", job.Tries, "error", err)

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
		} else {
			s.saveFailed(job, err)
			metrics.RecordEmail(job.Type, "failed")
		}
		return
	}

	logger.Info("email sent", "to", job.To, "type", job.Type)
	metrics.RecordEmail(job.Type, "sent")
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
	logger.Error("email moved to failed queue", "to", job.To)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

// refreshQueueGauge feeds the queue depth gauge after every enqueue and
// dequeue.
func (s *Service) refreshQueueGauge(ctx context.Context) {
	metrics.SetEmailQueueLength(s.QueueLength(ctx))
}
