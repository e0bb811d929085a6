package config

import "github.com/kelseyhightower/envconfig"

type DispatcherConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// WhatsApp bridge
	GatewayBaseURL string `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayAPIKey  string `envconfig:"GATEWAY_API_KEY" required:"true"`

	JobBatchSize int    `envconfig:"JOB_BATCH_SIZE" default:"10"`
	GroupDelayMs int    `envconfig:"GROUP_DELAY_MS" default:"1000"`
	CronSpec     string `envconfig:"CRON_SPEC"` // optional in-process trigger, e.g. "* * * * *"
}

type SchedulerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// WhatsApp bridge
	GatewayBaseURL string `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayAPIKey  string `envconfig:"GATEWAY_API_KEY" required:"true"`

	Timezone    string `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
	SendDelayMs int    `envconfig:"SEND_DELAY_MS" default:"3000"`
	LockLeaseS  int    `envconfig:"LOCK_LEASE_SECONDS" default:"90"`
	CronSpec    string `envconfig:"CRON_SPEC"`

	// Shopee open platform
	ShopeeBaseURL string `envconfig:"SHOPEE_BASE_URL" default:"https://open-api.affiliate.shopee.com.br"`

	// AWS / SQS dispatch-event fan-out (optional)
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

func LoadDispatcher() DispatcherConfig {
	var cfg DispatcherConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadScheduler() SchedulerConfig {
	var cfg SchedulerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
