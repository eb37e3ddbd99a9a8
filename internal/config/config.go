package config

type Config interface {
	EnvConfig
	AuthConfig
	APIConfig
}

type mainConfig struct {
	EnvVars
	Auth
	API
}

func New() Config {
	return mainConfig{}
}
