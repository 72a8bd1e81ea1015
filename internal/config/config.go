package config

import (
	"errors"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTP       HTTP       `envPrefix:"HTTP_"`
	Log        Log        `envPrefix:"LOG_"`
	Database   Database   `envPrefix:"DATABASE_"`
	Redis      Redis      `envPrefix:"REDIS_"`
	Cloudinary Cloudinary `envPrefix:"CLOUDINARY_"`
	Shotstack  Shotstack  `envPrefix:"SHOTSTACK_"`
	Worker     Worker     `envPrefix:"WORKER_"`
}

type HTTP struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"512"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

type Database struct {
	// Driver is "postgres" or "sqlite". Unset means postgres when URL is
	// given and sqlite otherwise.
	Driver string `env:"DRIVER"`
	URL    string `env:"URL"`
	Path   string `env:"PATH" envDefault:"clipstack.db"`
}

type Redis struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"45s"`
}

type Cloudinary struct {
	CloudName     string        `env:"CLOUD_NAME"`
	APIKey        string        `env:"API_KEY"`
	APISecret     string        `env:"API_SECRET"`
	Folder        string        `env:"FOLDER" envDefault:"hife_video_analysis"`
	BaseURL       string        `env:"BASE_URL" envDefault:"https://api.cloudinary.com"`
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	AdminTimeout  time.Duration `env:"ADMIN_TIMEOUT" envDefault:"15s"`
}

type Shotstack struct {
	APIKey        string        `env:"API_KEY"`
	BaseURL       string        `env:"BASE_URL" envDefault:"https://api.shotstack.io/edit/stage"`
	SubmitTimeout time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`
	StatusTimeout time.Duration `env:"STATUS_TIMEOUT" envDefault:"15s"`
}

type Worker struct {
	Schedule string `env:"SCHEDULE" envDefault:"@every 1m"`
}

func Parse() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, err
	}
	if err := c.Database.resolve(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *Database) resolve() error {
	switch {
	case d.Driver == "" && d.URL != "":
		d.Driver = "postgres"
	case d.Driver == "":
		d.Driver = "sqlite"
	case d.Driver == "sqlite" && d.URL != "":
		return errors.New("DATABASE_URL is set but DATABASE_DRIVER is sqlite")
	}
	return nil
}

func Load() *Config {
	c, err := Parse()
	if err != nil {
		log.Fatal(err)
	}

	return c
}
