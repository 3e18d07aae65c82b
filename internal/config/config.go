package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

var singleConfig *Config = nil

type Config struct {
	Database    *dbConfig          `json:"database"`
	Service     *svcConfig         `json:"service"`
	Queue       *queueConfig       `json:"queue"`
	Review      *reviewConfig      `json:"review"`
	LLM         *llmConfig         `json:"llm"`
	ObjectStore *objectStoreConfig `json:"objectStore"`
	Temporal    *temporalConfig    `json:"temporal"`
	Tracing     *tracingConfig     `json:"tracing"`
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql" json:"type"`
	Hostname string `envconfig:"DB_HOST" default:"localhost" json:"hostname"`
	Port     string `envconfig:"DB_PORT" default:"5432" json:"port"`
	Name     string `envconfig:"DB_NAME" default:"review" json:"name"`
	User     string `envconfig:"DB_USER" default:"admin" json:"user"`
	Password string `envconfig:"DB_PASS" default:"adminpass" json:"password"`
}

type svcConfig struct {
	Address        string   `envconfig:"REVIEW_API_ADDRESS" default:":3443" json:"address"`
	MetricsAddress string   `envconfig:"REVIEW_API_METRICS_ADDRESS" default:":8080" json:"metricsAddress"`
	LogLevel       string   `envconfig:"REVIEW_API_LOG_LEVEL" default:"info" json:"logLevel"`
	LogFormat      string   `envconfig:"REVIEW_API_LOG_FORMAT" default:"console" json:"logFormat"`
	PolicyDir      string   `envconfig:"REVIEW_API_POLICY_DIR" default:"" json:"policyDir"`
	AllowedOrigins []string `envconfig:"REVIEW_API_ALLOWED_ORIGINS" default:"http://localhost:5173" json:"allowedOrigins"`
	Auth           Auth     `json:"auth"`
}

type Auth struct {
	AuthenticationType string `envconfig:"REVIEW_API_AUTH" default:"" json:"type"`
	JwkCertURL         string `envconfig:"REVIEW_API_JWK_URL" default:"" json:"jwkCertUrl"`
}

type queueConfig struct {
	RedisAddress        string        `envconfig:"REVIEW_QUEUE_REDIS_ADDRESS" default:"localhost:6379" json:"redisAddress"`
	Name                string        `envconfig:"REVIEW_QUEUE_NAME" default:"" json:"name"`
	DepthThreshold      int           `envconfig:"REVIEW_QUEUE_DEPTH_THRESHOLD" default:"0" json:"depthThreshold"`
	MaxWait             time.Duration `envconfig:"REVIEW_QUEUE_MAX_WAIT" default:"24h" json:"maxWait"`
	ProcessingTimeout   time.Duration `envconfig:"REVIEW_QUEUE_PROCESSING_TIMEOUT" default:"20m" json:"processingTimeout"`
	RetryVisibility     time.Duration `envconfig:"REVIEW_QUEUE_RETRY_VISIBILITY" default:"15s" json:"retryVisibility"`
	PollInterval        time.Duration `envconfig:"REVIEW_QUEUE_POLL_INTERVAL" default:"5s" json:"pollInterval"`
	MaxConcurrentReview int           `envconfig:"REVIEW_MAX_CONCURRENCY" default:"2" json:"maxConcurrentReview"`
}

type reviewConfig struct {
	Executor             string        `envconfig:"REVIEW_EXECUTOR" default:"inprocess" json:"executor"`
	MaxItemConcurrency   int           `envconfig:"REVIEW_MAX_ITEM_CONCURRENCY" default:"1" json:"maxItemConcurrency"`
	RetryBaseInterval    time.Duration `envconfig:"REVIEW_RETRY_BASE_INTERVAL" default:"2s" json:"retryBaseInterval"`
	RetryMaxAttempts     int           `envconfig:"REVIEW_RETRY_MAX_ATTEMPTS" default:"5" json:"retryMaxAttempts"`
	MaxDocuments         int           `envconfig:"REVIEW_MAX_DOCUMENTS" default:"20" json:"maxDocuments"`
	MaxDocumentSize      int64         `envconfig:"REVIEW_MAX_DOCUMENT_SIZE" default:"104857600" json:"maxDocumentSize"`
	DefaultLanguage      string        `envconfig:"REVIEW_DEFAULT_LANGUAGE" default:"English" json:"defaultLanguage"`
	NextActionEnabled    bool          `envconfig:"REVIEW_NEXT_ACTION_ENABLED" default:"false" json:"nextActionEnabled"`
	NextActionTemplate   string        `envconfig:"REVIEW_NEXT_ACTION_TEMPLATE" default:"" json:"nextActionTemplate"`
	AmbiguityConcurrency int           `envconfig:"REVIEW_AMBIGUITY_CONCURRENCY" default:"4" json:"ambiguityConcurrency"`
}

type llmConfig struct {
	BaseURL             string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1" json:"baseUrl"`
	APIKey              string        `envconfig:"LLM_API_KEY" default:"" json:"-"`
	DocumentModel       string        `envconfig:"LLM_DOCUMENT_MODEL" default:"gpt-4o" json:"documentModel"`
	ImageModel          string        `envconfig:"LLM_IMAGE_MODEL" default:"gpt-4o" json:"imageModel"`
	SummaryModel        string        `envconfig:"LLM_SUMMARY_MODEL" default:"gpt-4o-mini" json:"summaryModel"`
	Timeout             time.Duration `envconfig:"LLM_TIMEOUT" default:"5m" json:"timeout"`
	MaxContextTokens    int           `envconfig:"LLM_MAX_CONTEXT_TOKENS" default:"100000" json:"maxContextTokens"`
	SystemPromptReserve int           `envconfig:"LLM_SYSTEM_PROMPT_RESERVE" default:"2000" json:"systemPromptReserve"`
	Temperature         float64       `envconfig:"LLM_TEMPERATURE" default:"0" json:"temperature"`
	MaxToolRounds       int           `envconfig:"LLM_MAX_TOOL_ROUNDS" default:"5" json:"maxToolRounds"`
	KnowledgeBaseURL    string        `envconfig:"LLM_KNOWLEDGE_BASE_URL" default:"" json:"knowledgeBaseUrl"`
	CodeInterpreterURL  string        `envconfig:"LLM_CODE_INTERPRETER_URL" default:"" json:"codeInterpreterUrl"`
	ToolTimeout         time.Duration `envconfig:"LLM_TOOL_TIMEOUT" default:"1m" json:"toolTimeout"`
}

type objectStoreConfig struct {
	Endpoint        string `envconfig:"OBJECT_STORE_ENDPOINT" default:"" json:"endpoint"`
	Bucket          string `envconfig:"OBJECT_STORE_BUCKET" default:"review-documents" json:"bucket"`
	AccessKey       string `envconfig:"OBJECT_STORE_ACCESS_KEY" default:"" json:"-"`
	SecretAccessKey string `envconfig:"OBJECT_STORE_SECRET_KEY" default:"" json:"-"`
	UseSSL          bool   `envconfig:"OBJECT_STORE_USE_SSL" default:"false" json:"useSSL"`
}

type temporalConfig struct {
	Address   string `envconfig:"TEMPORAL_ADDRESS" default:"" json:"address"`
	Namespace string `envconfig:"TEMPORAL_NAMESPACE" default:"default" json:"namespace"`
	TaskQueue string `envconfig:"TEMPORAL_TASK_QUEUE" default:"review-pipeline" json:"taskQueue"`
}

type tracingConfig struct {
	Enabled     bool    `envconfig:"OTEL_ENABLED" default:"false" json:"enabled"`
	Endpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"" json:"endpoint"`
	SampleRatio float64 `envconfig:"OTEL_SAMPLER_RATIO" default:"0.1" json:"sampleRatio"`
}

// New returns the process wide configuration read from the environment.
func New() (*Config, error) {
	if singleConfig == nil {
		cfg, err := load("")
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Load reads the environment and overlays the YAML file at path, when set.
func Load(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// NewDefault returns the defaults with an in-memory sqlite database. Used by tests.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = fmt.Sprintf("file:review-%d?mode=memory&cache=shared", time.Now().UnixNano())
	cfg.Review.RetryBaseInterval = time.Millisecond
	return cfg
}
