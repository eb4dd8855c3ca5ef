package config

const (
	// EnvPrefix is the envconfig prefix; individual fields carry explicit
	// SOKONI_-prefixed tags so this stays empty.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SOKONI_DB_DSN"
	EnvDBHost = "SOKONI_DB_HOST"
	EnvDBUser = "SOKONI_DB_USER"
	EnvDBName = "SOKONI_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
