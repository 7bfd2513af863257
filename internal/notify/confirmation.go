package notify

import (
	"context"
	"time"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

const confirmationTimeout = 10 * time.Second

// ConfirmationMailer emails the visitor once a registration is stored.
// Phone-only registrations are skipped.
type ConfirmationMailer struct {
	sender EmailSender
	logger *logging.Logger
}

// NewConfirmationMailer wraps sender as a registration listener.
func NewConfirmationMailer(sender EmailSender, logger *logging.Logger) *ConfirmationMailer {
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationMailer{sender: sender, logger: logger}
}

// OnSuccess sends the confirmation. Failures are logged; the registration already succeeded.
func (m *ConfirmationMailer) OnSuccess(ctx context.Context, outcome registration.Outcome) {
	rec := outcome.Record
	if rec.Email == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmationTimeout)
	defer cancel()

	if err := m.sender.Send(ctx, ConfirmationEmail(rec)); err != nil {
		m.logger.Warn("confirmation email failed", "record_id", rec.ID, "error", err)
	}
}

// OnError is a no-op; visitors see submission errors inline.
func (m *ConfirmationMailer) OnError(context.Context, error) {}

// ConfirmationEmail renders the message for rec.
func ConfirmationEmail(rec registration.Record) EmailMessage {
	msg := EmailMessage{To: rec.Email}
	switch rec.Kind {
	case registration.KindDemoRequest:
		msg.Subject = "무료 샘플 신청이 접수되었습니다"
		msg.Body = "보내주신 캐릭터 이미지로 AI 파츠 분리 샘플을 준비해 이 주소로 보내드릴게요.\n\n스팸 없이 샘플과 출시 소식만 전해드립니다."
	default:
		msg.Subject = "사전 예약이 완료되었습니다"
		msg.Body = "사전 예약이 완료되었습니다! 출시 시 가장 먼저 안내해 드릴게요.\n\n사전 예약 혜택으로 무료 크레딧이 지급됩니다."
	}
	return msg
}

var _ registration.Listener = (*ConfirmationMailer)(nil)
