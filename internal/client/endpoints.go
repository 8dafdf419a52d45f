package client

const (
	endpointRoot           = "/"
	endpointHealth         = "/health"
	endpointHealthDetailed = "/health/detailed"
	endpointHealthTokens   = "/health/tokens"

	endpointProviders      = "/v1/providers"
	endpointProvider       = "/v1/providers/%s"
	endpointProviderModels = "/v1/providers/%s/models"

	endpointSessions      = "/v1/sessions"
	endpointSession       = "/v1/sessions/%s"
	endpointSessionClose  = "/v1/sessions/%s/close"
	endpointSessionMemory = "/v1/sessions/%s/memory"

	endpointChatCompletions = "/v1/chat/completions"
)
