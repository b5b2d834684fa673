package emailsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"

	"github.com/trezcool/madrasa/core"
)

const resendTimeout = 10 * time.Second

type resendService struct {
	tmpls      *core.EmailTemplates
	client     *resend.Client
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*resendService)(nil)

func NewResendService(tmpls *core.EmailTemplates, logger core.Logger, conf *core.Config) *resendService {
	from := parseFrom(conf)
	return &resendService{
		tmpls:      tmpls,
		client:     resend.NewClient(conf.ResendApiKey),
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc *resendService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.tmpls.Render(msg); err != nil {
				err = errors.Wrap(err, "rendering email")
				svc.logger.Error(err.Error(), err)
				return
			}
			if msg.HasRecipients() && msg.HasContent() {
				svc.send(*msg)
			}
		}()
	}
}

func (svc *resendService) prepare(msg core.EmailMessage) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    svc.from,
		To:      msg.Recipients(),
		Subject: svc.subjPrefix + msg.Subject,
		Text:    msg.TextContent,
		Html:    msg.HTMLContent,
	}
}

func (svc *resendService) send(msg core.EmailMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), resendTimeout)
	defer cancel()

	if _, err := svc.client.Emails.SendWithContext(ctx, svc.prepare(msg)); err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
	}
}
