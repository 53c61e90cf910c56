package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "tasks_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "tasks_exchange",
			},
			WorkQueue: QueueConfig{
				Name: "task_queue",
			},
			ResultQueue: QueueConfig{
				Name: "result_queue",
			},
		},
		Worker: WorkerConfig{
			Concurrency:     4,
			MaxAttempts:     3,
			TaskTimeout:     2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "documents",
			VectorSize: 768,
		},
		Embedding: EmbeddingConfig{
			Endpoint: "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		AI: AIConfig{
			TestMode: true,
		},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "tasks_db", cfg.Database.Database)
				assert.Equal(t, "tasks_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "task_queue", cfg.RabbitMQ.WorkQueue.Name)
				assert.Equal(t, "result_queue", cfg.RabbitMQ.ResultQueue.Name)
				assert.Equal(t, "task-api-service", cfg.App.Name)
				assert.Equal(t, 3, cfg.Worker.MaxAttempts)
				assert.Equal(t, 2*time.Minute, cfg.Worker.TaskTimeout)
				assert.Equal(t, "documents", cfg.VectorStore.Collection)
				assert.Equal(t, uint64(768), cfg.VectorStore.VectorSize)
				assert.True(t, cfg.AI.TestMode)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty work queue name",
			mutate:    func(c *Config) { c.RabbitMQ.WorkQueue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq work queue name is required",
		},
		{
			name:      "empty result queue name",
			mutate:    func(c *Config) { c.RabbitMQ.ResultQueue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq result queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Worker.MaxAttempts = 0 },
			wantErr:   true,
			errString: "worker max_attempts must be greater than 0",
		},
		{
			name:      "zero task timeout",
			mutate:    func(c *Config) { c.Worker.TaskTimeout = 0 },
			wantErr:   true,
			errString: "worker task_timeout must be greater than 0",
		},
		{
			name:      "zero shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "worker shutdown_timeout must be greater than 0",
		},
		{
			name:      "empty vector store host",
			mutate:    func(c *Config) { c.VectorStore.Host = "" },
			wantErr:   true,
			errString: "vector store host is required",
		},
		{
			name:      "empty vector store collection",
			mutate:    func(c *Config) { c.VectorStore.Collection = "" },
			wantErr:   true,
			errString: "vector store collection is required",
		},
		{
			name:      "empty embedding endpoint",
			mutate:    func(c *Config) { c.Embedding.Endpoint = "" },
			wantErr:   true,
			errString: "embedding endpoint is required",
		},
		{
			name: "missing api key outside test mode",
			mutate: func(c *Config) {
				c.AI.TestMode = false
				c.AI.APIKey = ""
			},
			wantErr:   true,
			errString: "ai api_key is required",
		},
		{
			name: "api key present outside test mode",
			mutate: func(c *Config) {
				c.AI.TestMode = false
				c.AI.APIKey = "sk-test"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}
