package mail

import "errors"

// Error variables define message pipeline failures. Validation and
// configuration errors are terminal for the attempt: they are recorded on
// the document and never retried automatically.
var (
	ErrInvalidRecipientField   = errors.New("recipient field must be a string or a list of strings")
	ErrNoRecipients            = errors.New("message has no recipients")
	ErrUserLookupNotConfigured = errors.New("uid addressing requires a configured user lookup")
	ErrTemplatesNotConfigured  = errors.New("message references a template but no template source is configured")
	ErrMissingTemplateName     = errors.New("template name is required")
	ErrTemplateNotFound        = errors.New("template not found")
	ErrFailedToSend            = errors.New("failed to send message")
	ErrInvalidConfig           = errors.New("invalid transport configuration")
	ErrResolverNil             = errors.New("resolver cannot be nil")
	ErrTemplateSourceNil       = errors.New("template source cannot be nil")
)
