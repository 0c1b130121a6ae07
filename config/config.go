package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"clover-api"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// PostgreSQL (Ledger)
	DatabaseHost                  string        `env:"DB_HOST" envDefault:""`
	DatabasePort                  string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword              string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                  string        `env:"DB_NAME" envDefault:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Graph Database (Neo4j/Memgraph)
	GraphDBHost     string `env:"GRAPH_DB_HOST" envDefault:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" envDefault:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" envDefault:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" envDefault:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" envDefault:""`

	// Redis (Consolidated View Store)
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix  string `env:"REDIS_KEY_PREFIX" envDefault:"clover:"`
	RedisLockPrefix string `env:"REDIS_LOCK_PREFIX" envDefault:"clover-lock:"`

	// MongoDB (interest profiles). Empty URI disables the interest store.
	MongoURI                 string `env:"MONGO_URI" envDefault:""`
	MongoDatabase            string `env:"MONGO_DATABASE" envDefault:"clover"`
	MongoInterestsCollection string `env:"MONGO_INTERESTS_COLLECTION" envDefault:"customer_interests"`

	// Kafka
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTriggerTopic    string   `env:"KAFKA_TRIGGER_TOPIC" envDefault:"ledger-changes"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"clover-rebuild"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" envDefault:"false"`
	KafkaEventsTopic     string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"clover-events"`
	KafkaProducerEnabled bool     `env:"KAFKA_PRODUCER_ENABLED" envDefault:"false"`
	KafkaBatchSize       int      `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeoutMS  int      `env:"KAFKA_BATCH_TIMEOUT_MS" envDefault:"100"`
	KafkaRequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression     string   `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Rebuild
	RebuildWorkers    int           `env:"REBUILD_WORKERS" envDefault:"8"`
	RebuildLockTTL    time.Duration `env:"REBUILD_LOCK_TTL" envDefault:"2m"`
	RebuildOnPurchase bool          `env:"REBUILD_ON_PURCHASE" envDefault:"true"`

	// how long callers wait out a rebuild that already holds the lock
	RebuildRetryDelay    time.Duration `env:"REBUILD_RETRY_DELAY" envDefault:"1s"`
	RebuildRetryAttempts int           `env:"REBUILD_RETRY_ATTEMPTS" envDefault:"10"`

	// Tracing
	OTLPEnabled  bool   `env:"OTLP_ENABLED" envDefault:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" envDefault:"true"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	// a missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the connection settings every command needs are present.
func (c Config) Validate() error {
	if c.DatabaseHost == "" {
		return clovererrors.NewConfigurationError("DB_HOST", "ledger database host is required")
	}
	if c.DatabaseUserName == "" {
		return clovererrors.NewConfigurationError("DB_USER_NAME", "ledger database user is required")
	}
	if c.GraphDBHost == "" {
		return clovererrors.NewConfigurationError("GRAPH_DB_HOST", "graph database host is required")
	}
	if c.RedisHost == "" {
		return clovererrors.NewConfigurationError("REDIS_HOST", "redis host is required")
	}
	if c.RebuildWorkers < 1 {
		return clovererrors.NewConfigurationError("REBUILD_WORKERS", "must be at least 1")
	}
	if c.RebuildRetryAttempts < 1 {
		return clovererrors.NewConfigurationError("REBUILD_RETRY_ATTEMPTS", "must be at least 1")
	}
	if (c.KafkaConsumerEnabled || c.KafkaProducerEnabled) && len(c.KafkaBrokers) == 0 {
		return clovererrors.NewConfigurationError("KAFKA_BROKERS", "brokers are required when kafka is enabled")
	}
	return nil
}

// DatabaseDSN builds the lib/pq connection string for the ledger.
func (c Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}

// InterestsEnabled reports whether a MongoDB URI was configured.
func (c Config) InterestsEnabled() bool {
	return c.MongoURI != ""
}
