package config

// APIConfig exposes the downstream API settings.
type APIConfig interface {
	// GetAPIBaseURL returns the base URL of the backend API that bearer
	// tokens are attached to.
	GetAPIBaseURL() string
}

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8000")
}
