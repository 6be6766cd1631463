package emailsvc

import (
	"os"

	"github.com/trezcool/coachdiary/core"
)

// New returns the EmailService of the configured mail backend.
// Without a sendgrid API key, emails are written to stdout.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Mail.Backend == core.MailBackendSendgrid && conf.Mail.SendgridAPIKey != "" {
		return NewSendgridService(conf, logger)
	}
	if conf.Mail.Backend == core.MailBackendSendgrid {
		logger.Warn("mail backend is sendgrid but no API key is set; falling back to console")
	}
	return NewConsoleService(conf, logger, os.Stdout)
}
