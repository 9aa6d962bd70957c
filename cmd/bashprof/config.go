package main

import "github.com/ilyakaznacheev/cleanenv"

type (
	// Config holds environment-tunable defaults that are not worth a
	// flag on every invocation.
	Config struct {
		// Workers is the parallel parse worker count, GOMAXPROCS when 0.
		Workers int `env:"BASHPROF_WORKERS" env-default:"0"`
		// BatchSize is the number of lines per parse task.
		BatchSize int `env:"BASHPROF_BATCH_SIZE" env-default:"100"`
		// Top is the row count of each report table.
		Top int `env:"BASHPROF_TOP" env-default:"20"`
	}
)

func loadConfig() (Config, error) {
	var c Config
	err := cleanenv.ReadEnv(&c)
	return c, err
}
