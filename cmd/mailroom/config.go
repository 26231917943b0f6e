package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// appConfig holds the top-level service settings. Component configs (mongo,
// delivery, dispatch, transports) are parsed separately by their packages'
// own Config structs.
type appConfig struct {
	Database       string `env:"MONGODB_DATABASE" envDefault:"mailroom"`
	MailCollection string `env:"MAIL_COLLECTION" envDefault:"mail"`

	// UsersCollection and TemplatesCollection are optional; identifier-based
	// recipients and stored templates only work when the matching collection
	// is configured.
	UsersCollection     string `env:"USERS_COLLECTION"`
	TemplatesCollection string `env:"TEMPLATES_COLLECTION"`

	// Transport selects the mail delivery backend: smtp, postmark, or file.
	Transport string `env:"MAIL_TRANSPORT" envDefault:"smtp"`
	// FileDir is where the file transport writes messages.
	FileDir string `env:"MAIL_FILE_DIR" envDefault:"./outbox"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text
}

// loadConfig reads .env files when present and parses a config struct from
// the environment.
func loadConfig[T any](cfg *T) error {
	_ = godotenv.Load() // missing .env files are fine

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}
