package config

import (
	"os"
	"strings"
	"time"
)

// DefaultAWSRegion is forwarded to child processes when AWS_REGION is unset.
const DefaultAWSRegion = "us-east-1"

// WorkerConfig holds runtime configuration for the deployment worker.
type WorkerConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	DatabaseServiceKey string
	MigrationsDir      string
	AutoMigrate        bool
	LogLevel           string

	PollInterval  time.Duration
	StoreTimeout  time.Duration
	ShutdownGrace time.Duration

	WorkspaceRoot   string
	WorkspacePrefix string
	GitTimeout      time.Duration
	CommandTimeout  time.Duration

	AWS          AWSCredentials
	AWSPreflight bool

	Toolchain Toolchain

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
}

// AWSCredentials are propagated into every spawned process.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Toolchain names the command lines the pipeline shells out to. An empty
// InstallCommand means the package manager is detected from the checkout.
type Toolchain struct {
	InstallCommand     string
	ToolProbeCommand   string
	ToolInstallCommand string
	DeployCommand      string
	RemoveCommand      string
}

// DefaultToolchain matches the SST based deployment flow.
func DefaultToolchain() Toolchain {
	return Toolchain{
		ToolProbeCommand:   "npx sst version",
		ToolInstallCommand: "npm install -g sst",
		DeployCommand:      "npx sst deploy",
		RemoveCommand:      "npx sst remove",
	}
}

// LoadWorkerConfig constructs a WorkerConfig from environment variables.
func LoadWorkerConfig() WorkerConfig {
	defaults := DefaultToolchain()
	region := strings.TrimSpace(GetString("AWS_REGION", ""))
	if region == "" {
		region = DefaultAWSRegion
	}
	port := strings.TrimPrefix(strings.TrimSpace(GetString("PORT", "")), ":")
	if port == "" {
		port = "8080"
	}
	return WorkerConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               ":" + port,
		DatabaseURL:        GetString("DATABASE_URL", ""),
		DatabaseServiceKey: GetString("DATABASE_SERVICE_KEY", ""),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		AutoMigrate:        GetBool("AUTO_MIGRATE", false),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		PollInterval:       GetMillis("POLL_INTERVAL", 30000),
		StoreTimeout:       GetSeconds("STORE_TIMEOUT_SECONDS", 10),
		ShutdownGrace:      GetSeconds("SHUTDOWN_GRACE_SECONDS", 120),
		WorkspaceRoot:      GetString("WORKSPACE_ROOT", os.TempDir()),
		WorkspacePrefix:    GetString("WORKSPACE_PREFIX", "repo-"),
		GitTimeout:         GetSeconds("GIT_TIMEOUT_SECONDS", 300),
		CommandTimeout:     GetSeconds("COMMAND_TIMEOUT_SECONDS", 1800),
		AWS: AWSCredentials{
			AccessKeyID:     GetString("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: GetString("AWS_SECRET_ACCESS_KEY", ""),
			Region:          region,
		},
		AWSPreflight: GetBool("AWS_PREFLIGHT", true),
		Toolchain: Toolchain{
			InstallCommand:     GetString("INSTALL_COMMAND", ""),
			ToolProbeCommand:   GetString("TOOL_PROBE_COMMAND", defaults.ToolProbeCommand),
			ToolInstallCommand: GetString("TOOL_INSTALL_COMMAND", defaults.ToolInstallCommand),
			DeployCommand:      GetString("DEPLOY_COMMAND", defaults.DeployCommand),
			RemoveCommand:      GetString("REMOVE_COMMAND", defaults.RemoveCommand),
		},
		RedisAddr:     GetString("REDIS_ADDR", ""),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		RedisChannel:  GetString("REDIS_CHANNEL", "deployments:events"),
	}
}
