// config/config.go
package config

import (
	"log"

	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration
	Neo4j         DatabaseConfiguration
	Redis         RedisConfiguration
	Elasticsearch ElasticsearchConfiguration
	Auth          AuthConfiguration
	Cache         CacheConfiguration
	Session       SessionConfiguration
	Sweeper       SweeperConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port string
}

// DatabaseConfiguration stores data for database connection
type DatabaseConfiguration struct {
	URI string
}

// RedisConfiguration stores data for Redis connection
type RedisConfiguration struct {
	Addr string
}

// ElasticsearchConfiguration stores data for Elasticsearch connection
type ElasticsearchConfiguration struct {
	URL string
}

// AuthConfiguration stores token lifetimes and the signing secret
type AuthConfiguration struct {
	JWTSecret          string
	AccessTokenTTL     string
	RefreshTokenTTL    string
	ValidationCacheTTL string
}

// CacheConfiguration stores cache TTLs and operation timeouts
type CacheConfiguration struct {
	PermissionTTL string
	LocalTTL      string
	OpTimeout     string
}

// SessionConfiguration stores the sliding window and absolute bound
type SessionConfiguration struct {
	Window      string
	MaxLifetime string
}

// SweeperConfiguration stores the reconciliation interval
type SweeperConfiguration struct {
	Interval string
}

var config *Configuration

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	viper.AutomaticEnv() // read in environment variables that match

	// Set default configurations
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolSize", 20)
	viper.SetDefault("redis.dialTimeout", "5s")
	viper.SetDefault("redis.readTimeout", "5s")
	viper.SetDefault("redis.writeTimeout", "5s")
	viper.SetDefault("redis.poolTimeout", "5s")
	viper.SetDefault("elasticsearch.url", "http://localhost:9200")
	viper.SetDefault("log.dir", "logging")

	// Permission cache entries are security-sensitive, so the TTL is kept
	// short. The local tier is a hot mirror of Redis kept honest by pub/sub
	// invalidation, so its TTL is shorter still.
	viper.SetDefault("cache.permissionTTL", "10m")
	viper.SetDefault("cache.localTTL", "30s")
	viper.SetDefault("cache.opTimeout", "5s")

	viper.SetDefault("auth.accessTokenTTL", "15m")
	viper.SetDefault("auth.refreshTokenTTL", "720h")
	viper.SetDefault("auth.validationCacheTTL", "5m")

	viper.SetDefault("session.window", "9h")
	viper.SetDefault("session.maxLifetime", "24h")

	viper.SetDefault("sweeper.interval", "1h")

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	err := viper.Unmarshal(&config)
	if err != nil {
		return err
	}

	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}
