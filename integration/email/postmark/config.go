package postmark

// Config holds Postmark API credentials.
type Config struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	TrackOpens   bool   `env:"POSTMARK_TRACK_OPENS" envDefault:"true"`
}
