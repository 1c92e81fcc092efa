package envvar

const (
	// WhisperAPIEnv is the environment variable used to determine the environment
	WhisperAPIEnv = "WHISPER_API_ENV"

	// WhisperAPIServerHTTPPort is the environment variable used to determine the HTTP port
	WhisperAPIServerHTTPPort = "WHISPER_API_SERVER_HTTP_PORT"

	// WhisperAPIServerGRPCPort is the environment variable used to determine the gRPC port
	WhisperAPIServerGRPCPort = "WHISPER_API_SERVER_GRPC_PORT"

	// WhisperAPIModelsPath is the environment variable used to override the models directory
	WhisperAPIModelsPath = "WHISPER_API_MODELS_PATH"

	// WhisperAPILogLevel is the environment variable used to override the log level
	WhisperAPILogLevel = "WHISPER_API_LOG_LEVEL"

	// WhisperAPIOpenAIKey is the environment variable holding the upstream API key for the openai backend
	WhisperAPIOpenAIKey = "WHISPER_API_OPENAI_API_KEY"
)
