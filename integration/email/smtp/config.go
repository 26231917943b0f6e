package smtp

// Config holds SMTP server configuration. Credentials are optional as a pair:
// leave both empty for servers that accept unauthenticated relay (local
// development catchers like Mailpit), or set both for production servers.
type Config struct {
	Host     string `env:"SMTP_HOST,required"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	TLSMode  string `env:"SMTP_TLS_MODE" envDefault:"starttls"` // starttls, tls, or plain
}
