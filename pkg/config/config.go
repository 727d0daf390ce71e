package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
)

// Environment variable names for server and client configuration
const (
	EnvPageproofPort            = "PAGEPROOF_PORT"
	EnvPageproofHashAlgorithm   = "PAGEPROOF_HASH_ALGORITHM"
	EnvPageproofPersistenceType = "PAGEPROOF_PERSISTENCE_TYPE"
	EnvPageproofDataPath        = "PAGEPROOF_DATA_PATH"
	EnvPageproofRedisAddress    = "PAGEPROOF_REDIS_ADDRESS"
	EnvPageproofRedisPassword   = "PAGEPROOF_REDIS_PASSWORD"
	EnvPageproofRedisDB         = "PAGEPROOF_REDIS_DB"
	EnvPageproofRedisKeyPrefix  = "PAGEPROOF_REDIS_KEY_PREFIX"
	EnvPageproofMaxUploadBytes  = "PAGEPROOF_MAX_UPLOAD_BYTES"
	EnvPageproofUploadRate      = "PAGEPROOF_UPLOAD_RATE"
	EnvPageproofUploadBurst     = "PAGEPROOF_UPLOAD_BURST"
	EnvPageproofVerbose         = "PAGEPROOF_VERBOSE"
	EnvPageproofServerURL       = "PAGEPROOF_SERVER_URL"
)

// Defaults
const (
	DefaultPort           = 8080
	DefaultDataPath       = "./data/pageproof"
	DefaultMaxUploadBytes = 32 << 20
	DefaultUploadRate     = 5.0
	DefaultUploadBurst    = 10
	DefaultServerURL      = "http://127.0.0.1:8080"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// GetSupportedPersistenceTypes returns all supported persistence backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis}
}

// GetSupportedPersistenceTypesString returns supported backends for CLI help
func GetSupportedPersistenceTypesString() string {
	names := make([]string, 0, 3)
	for _, p := range GetSupportedPersistenceTypes() {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}

// RedisConfig holds the Redis connection settings used by the redis backend
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// ServerConfig represents the complete configuration for a proof server
type ServerConfig struct {
	Port int `json:"port"`

	// HashAlgorithm is used for newly ingested documents. Existing documents
	// keep the algorithm recorded with them.
	HashAlgorithm merkle.HashAlgorithm `json:"hash_algorithm"`

	// Persistence
	PersistenceType PersistenceType `json:"persistence_type"`
	DataPath        string          `json:"data_path"`
	Redis           RedisConfig     `json:"redis"`

	// Upload limits
	MaxUploadBytes int64   `json:"max_upload_bytes"`
	UploadRate     float64 `json:"upload_rate"` // uploads per second; 0 disables limiting
	UploadBurst    int     `json:"upload_burst"`

	// Operational settings
	Debug bool `json:"debug"`
}

// Validate validates the server configuration, reporting every problem at once
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	if _, err := merkle.NewHasher(c.HashAlgorithm); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashAlgorithm"), c.HashAlgorithm, algorithmNames()))
	}

	switch c.PersistenceType {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "address is required for redis persistence"))
		}
		if c.Redis.DB < 0 || c.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), c.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), c.PersistenceType, persistenceNames()))
	}

	if c.MaxUploadBytes <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxUploadBytes"), c.MaxUploadBytes, "must be positive"))
	}
	if c.UploadRate < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("uploadRate"), c.UploadRate, "must not be negative"))
	}
	if c.UploadRate > 0 && c.UploadBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("uploadBurst"), c.UploadBurst, "must be at least 1 when uploadRate is set"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// NewDefaultServerConfig returns a config with in-memory persistence and
// default limits.
func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            DefaultPort,
		HashAlgorithm:   merkle.DefaultHashAlgorithm,
		PersistenceType: PersistenceTypeMemory,
		DataPath:        DefaultDataPath,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		UploadRate:      DefaultUploadRate,
		UploadBurst:     DefaultUploadBurst,
	}
}

func algorithmNames() []string {
	supported := merkle.SupportedHashAlgorithms()
	names := make([]string, len(supported))
	for i, a := range supported {
		names[i] = a.String()
	}
	return names
}

func persistenceNames() []string {
	supported := GetSupportedPersistenceTypes()
	names := make([]string, len(supported))
	for i, p := range supported {
		names[i] = p.String()
	}
	return names
}

// ClientConfig configures the HTTP client and CLI
type ClientConfig struct {
	ServerURL string `json:"server_url"`
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server URL must start with http:// or https://, got %s", c.ServerURL)
	}
	return nil
}
