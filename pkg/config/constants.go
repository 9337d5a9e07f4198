package config

const (
	// EnvPrefix is empty because every envconfig tag spells out the full
	// MARKETPLACE_ variable name.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)
