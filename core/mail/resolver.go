package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserLookup resolves opaque user identifiers to email addresses in a single
// batch. Identifiers with no resolvable address are simply absent from the
// returned map; that is not an error.
type UserLookup interface {
	Emails(ctx context.Context, uids []string) (map[string]string, error)
}

// Recipients holds the resolved address lists of a message.
type Recipients struct {
	To  []string
	Cc  []string
	Bcc []string
}

// Empty reports whether no address was resolved at all.
func (r Recipients) Empty() bool {
	return len(r.To) == 0 && len(r.Cc) == 0 && len(r.Bcc) == 0
}

// All returns every resolved address in to, cc, bcc order.
func (r Recipients) All() []string {
	all := make([]string, 0, len(r.To)+len(r.Cc)+len(r.Bcc))
	all = append(all, r.To...)
	all = append(all, r.Cc...)
	all = append(all, r.Bcc...)
	return all
}

// Resolver turns the recipient fields of a message into concrete address
// lists. The user lookup is optional; without it only direct addressing is
// available and identifier-based messages fail with a configuration error.
type Resolver struct {
	users  UserLookup
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithUserLookup enables identifier-based addressing.
func WithUserLookup(users UserLookup) ResolverOption {
	return func(r *Resolver) {
		r.users = users
	}
}

// WithResolverLogger sets the logger for missing-identifier warnings.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a recipient resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the final address lists for a message.
//
// When identifier fields are present, directly supplied addresses are
// ignored entirely rather than merged with resolved ones. This mirrors the
// behavior of the system this processor replaces; do not "fix" it into a
// merge.
func (r *Resolver) Resolve(ctx context.Context, msg *Message) (Recipients, error) {
	if !msg.UsesUids() {
		return r.resolveDirect(msg)
	}
	return r.resolveUids(ctx, msg)
}

func (r *Resolver) resolveDirect(msg *Message) (Recipients, error) {
	to, err := normalizeAddressField("to", msg.To)
	if err != nil {
		return Recipients{}, err
	}
	cc, err := normalizeAddressField("cc", msg.Cc)
	if err != nil {
		return Recipients{}, err
	}
	bcc, err := normalizeAddressField("bcc", msg.Bcc)
	if err != nil {
		return Recipients{}, err
	}
	return Recipients{To: to, Cc: cc, Bcc: bcc}, nil
}

func (r *Resolver) resolveUids(ctx context.Context, msg *Message) (Recipients, error) {
	if r.users == nil {
		return Recipients{}, ErrUserLookupNotConfigured
	}

	// One batched lookup for all distinct identifiers across the three fields.
	distinct := make([]string, 0, len(msg.ToUids)+len(msg.CcUids)+len(msg.BccUids))
	for _, uid := range slices.Concat(msg.ToUids, msg.CcUids, msg.BccUids) {
		if !slices.Contains(distinct, uid) {
			distinct = append(distinct, uid)
		}
	}

	emails, err := r.users.Emails(ctx, distinct)
	if err != nil {
		return Recipients{}, fmt.Errorf("failed to look up recipient uids: %w", err)
	}

	return Recipients{
		To:  r.addressesFor(ctx, msg.ToUids, emails),
		Cc:  r.addressesFor(ctx, msg.CcUids, emails),
		Bcc: r.addressesFor(ctx, msg.BccUids, emails),
	}, nil
}

// addressesFor maps identifiers to addresses in input order. Identifiers with
// no resolvable address are logged and omitted, not fatal.
func (r *Resolver) addressesFor(ctx context.Context, uids []string, emails map[string]string) []string {
	if len(uids) == 0 {
		return nil
	}

	addrs := make([]string, 0, len(uids))
	for _, uid := range uids {
		email, ok := emails[uid]
		if !ok || email == "" {
			r.logger.WarnContext(ctx, "no email address found for uid",
				slog.String("uid", uid))
			continue
		}
		addrs = append(addrs, email)
	}
	return addrs
}

// normalizeAddressField accepts a single string or a list of strings. BSON
// decodes arrays into []any, so both shapes are handled alongside the plain
// []string tests and callers use.
func normalizeAddressField(field string, value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return slices.Clone(v), nil
	case bson.A:
		return stringsFromList(field, v)
	case []any:
		return stringsFromList(field, v)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipientField, field)
	}
}

func stringsFromList(field string, list []any) ([]string, error) {
	addrs := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRecipientField, field)
		}
		addrs = append(addrs, s)
	}
	return addrs, nil
}
