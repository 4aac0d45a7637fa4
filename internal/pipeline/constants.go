package pipeline

// Default values for extraction and parsing.
const (
	// DefaultModelName is the default Gemini model used for extraction.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultChatModel is the default model for OpenAI-compatible endpoints.
	DefaultChatModel = "deepseek/deepseek-chat"

	// DefaultChatBaseURL is the default OpenAI-compatible endpoint.
	DefaultChatBaseURL = "https://api.vsegpt.ru/v1/chat/completions"

	// DefaultTemperature keeps the extraction close to deterministic.
	DefaultTemperature = 0.1

	// DefaultTitle is sent as X-Title to OpenAI-compatible endpoints.
	DefaultTitle = "Agro Message Parser"

	// BatchSeparator joins several messages into one user prompt.
	BatchSeparator = "\n\n=== NEXT MESSAGE ===\n\n"

	// ParserVersion is recorded with every extraction run.
	ParserVersion = "v1"
)
