package service

import (
	"context"

	"github.com/safar/dropshop/internal/logger"
	"go.uber.org/zap"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	logger.Info("password reset requested", zap.String("to", to), zap.String("link", link))
	return nil
}
