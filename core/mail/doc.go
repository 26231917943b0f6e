// Package mail defines the message document model and the pipeline that
// turns a stored message into a sendable payload: recipient resolution,
// optional template rendering, and payload preparation.
//
// Recipient fields accept either a single address string or a list of
// address strings. When any of the toUids/ccUids/bccUids fields is present,
// addressing switches to identifier mode: all distinct identifiers are
// resolved through a UserLookup in one batch, identifiers without a
// resolvable address are logged and omitted, and any directly supplied
// addresses are ignored.
//
// Template rendering is optional. When a message references a template by
// name, the configured TemplateSource provides subject/html/text template
// sources which are rendered with the message's template data. Rendered
// fields are merged under explicitly set message fields, so a caller-supplied
// subject always wins over a rendered one.
//
// Basic usage:
//
//	resolver := mail.NewResolver(mail.WithUserLookup(users))
//	renderer, _ := mail.NewRenderer(templates)
//	preparer, _ := mail.NewPreparer(resolver, mail.WithRenderer(renderer))
//
//	payload, err := preparer.Prepare(ctx, doc.Message)
//	if err != nil {
//		// validation or configuration failure, recorded on the document
//	}
//	result, err := transport.Send(ctx, payload)
package mail
