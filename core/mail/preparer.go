package mail

import (
	"context"
	"fmt"
)

// Payload is a fully prepared, sendable message: rendered fields and
// resolved recipient lists.
type Payload struct {
	To      []string
	Cc      []string
	Bcc     []string
	Message Message
}

// Recipients returns every envelope recipient of the payload.
func (p *Payload) Recipients() []string {
	return Recipients{To: p.To, Cc: p.Cc, Bcc: p.Bcc}.All()
}

// Preparer composes template rendering and recipient resolution into the
// final payload handed to the transport. The renderer is optional; a message
// that references a template while no renderer is configured fails with a
// configuration error.
type Preparer struct {
	resolver *Resolver
	renderer *Renderer
}

// PreparerOption configures a Preparer.
type PreparerOption func(*Preparer)

// WithRenderer enables template expansion.
func WithRenderer(renderer *Renderer) PreparerOption {
	return func(p *Preparer) {
		p.renderer = renderer
	}
}

// NewPreparer creates a payload preparer.
func NewPreparer(resolver *Resolver, opts ...PreparerOption) (*Preparer, error) {
	if resolver == nil {
		return nil, ErrResolverNil
	}

	p := &Preparer{resolver: resolver}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Prepare renders the message's template, resolves its recipients, and
// rejects payloads that end up with no recipients at all.
func (p *Preparer) Prepare(ctx context.Context, msg Message) (*Payload, error) {
	if msg.Template != nil && p.renderer == nil {
		return nil, ErrTemplatesNotConfigured
	}

	if p.renderer != nil {
		rendered, err := p.renderer.Apply(ctx, msg)
		if err != nil {
			return nil, err
		}
		msg = rendered
	}

	recipients, err := p.resolver.Resolve(ctx, &msg)
	if err != nil {
		return nil, err
	}
	if recipients.Empty() {
		return nil, fmt.Errorf("%w: expected at least 1 recipient", ErrNoRecipients)
	}

	return &Payload{
		To:      recipients.To,
		Cc:      recipients.Cc,
		Bcc:     recipients.Bcc,
		Message: msg,
	}, nil
}
