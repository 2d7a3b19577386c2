package config

import "time"

// Config holds application configuration.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	DataDir     string `env:"DATA_DIR" envDefault:"/var/lib/catalogue-parser"`

	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	JobTimeout      time.Duration `env:"JOB_TIMEOUT" envDefault:"15m"`
	OCRPageTimeout  time.Duration `env:"OCR_PAGE_TIMEOUT" envDefault:"45s"`
	FetchRetries    uint64        `env:"FETCH_RETRIES" envDefault:"2"`
	FetchWorkers    int           `env:"FETCH_WORKERS" envDefault:"4"`
	PageParallelism int           `env:"PAGE_PARALLELISM" envDefault:"2"`
	ListingFanOut   int           `env:"LISTING_FAN_OUT" envDefault:"10"`

	RabbitMQ RabbitMQ
}

// RabbitMQ holds RabbitMQ configuration.
type RabbitMQ struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"catalogue-ex"`
	Queue    string `env:"RABBITMQ_QUEUE" envDefault:"catalogue-parser.commands"`
}
