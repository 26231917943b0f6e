package mail_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apascal07/mailroom/core/mail"
)

// fakeTemplateSource serves template definitions from a map.
type fakeTemplateSource struct {
	templates map[string]*mail.TemplateDefinition
}

func (f *fakeTemplateSource) Template(ctx context.Context, name string) (*mail.TemplateDefinition, error) {
	def, ok := f.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mail.ErrTemplateNotFound, name)
	}
	return def, nil
}

func TestNewRenderer(t *testing.T) {
	t.Parallel()

	renderer, err := mail.NewRenderer(nil)
	assert.ErrorIs(t, err, mail.ErrTemplateSourceNil)
	assert.Nil(t, renderer)
}

func TestRenderer_Apply(t *testing.T) {
	t.Parallel()

	source := &fakeTemplateSource{templates: map[string]*mail.TemplateDefinition{
		"welcome": {
			Name:    "welcome",
			Subject: "Hello {{.name}}",
			HTML:    "<p>Welcome, {{.name}}!</p>",
			Text:    "Welcome, {{.name}}!",
		},
		"upper": {
			Name:    "upper",
			Subject: "{{upper .name}}",
		},
	}}

	newRenderer := func(t *testing.T) *mail.Renderer {
		t.Helper()
		renderer, err := mail.NewRenderer(source)
		require.NoError(t, err)
		return renderer
	}

	t.Run("renders all fields with template data", func(t *testing.T) {
		t.Parallel()

		msg, err := newRenderer(t).Apply(context.Background(), mail.Message{
			Template: &mail.TemplateRef{Name: "welcome", Data: map[string]any{"name": "Ada"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada", msg.Subject)
		assert.Equal(t, "<p>Welcome, Ada!</p>", msg.HTML)
		assert.Equal(t, "Welcome, Ada!", msg.Text)
	})

	t.Run("explicit message fields win over rendered ones", func(t *testing.T) {
		t.Parallel()

		msg, err := newRenderer(t).Apply(context.Background(), mail.Message{
			Subject:  "Bye",
			Template: &mail.TemplateRef{Name: "welcome", Data: map[string]any{"name": "Ada"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bye", msg.Subject)
		assert.Equal(t, "<p>Welcome, Ada!</p>", msg.HTML)
	})

	t.Run("sprig functions are available", func(t *testing.T) {
		t.Parallel()

		msg, err := newRenderer(t).Apply(context.Background(), mail.Message{
			Template: &mail.TemplateRef{Name: "upper", Data: map[string]any{"name": "ada"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "ADA", msg.Subject)
	})

	t.Run("html rendering escapes data", func(t *testing.T) {
		t.Parallel()

		msg, err := newRenderer(t).Apply(context.Background(), mail.Message{
			Template: &mail.TemplateRef{Name: "welcome", Data: map[string]any{"name": "<script>"}},
		})
		require.NoError(t, err)
		assert.NotContains(t, msg.HTML, "<script>")
	})

	t.Run("message without template passes through", func(t *testing.T) {
		t.Parallel()

		in := mail.Message{Subject: "s", Text: "t"}
		msg, err := newRenderer(t).Apply(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, in, msg)
	})

	t.Run("missing template name fails", func(t *testing.T) {
		t.Parallel()

		_, err := newRenderer(t).Apply(context.Background(), mail.Message{
			Template: &mail.TemplateRef{Data: map[string]any{"name": "Ada"}},
		})
		assert.ErrorIs(t, err, mail.ErrMissingTemplateName)
	})

	t.Run("unknown template fails", func(t *testing.T) {
		t.Parallel()

		_, err := newRenderer(t).Apply(context.Background(), mail.Message{
			Template: &mail.TemplateRef{Name: "nope"},
		})
		assert.ErrorIs(t, err, mail.ErrTemplateNotFound)
	})
}
