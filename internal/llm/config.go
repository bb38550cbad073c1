package llm

import "time"

// Provider names accepted by NewClient.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Config configures a model provider client.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Timeout bounds one HTTP round trip.
	Timeout time.Duration
	Headers map[string]string
	// MaxRetries is the number of retries after the first attempt for
	// transient provider failures. Zero disables the retry wrapper.
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerMinute int
}
