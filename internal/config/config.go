package config

import (
	"time"

	"github.com/kzhama/todoauth/internal/obs"
	pg "github.com/kzhama/todoauth/internal/repository/postgres"
	rds "github.com/kzhama/todoauth/internal/repository/redis"
	"github.com/kzhama/todoauth/internal/secret"
	authsvc "github.com/kzhama/todoauth/internal/services/auth"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) *obs.LogConfig {
	return &obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

// Password carries the pepper and the argon2id cost parameters. The pepper
// is plain text here only until load time; AsPasswordConfig wraps it so it
// cannot reach a log.
type Password struct {
	Pepper      string `mapstructure:"pepper"`
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func (pc *Password) AsPasswordConfig() authsvc.PasswordConfig {
	return authsvc.PasswordConfig{
		Pepper:      secret.New(pc.Pepper),
		Memory:      pc.Memory,
		Iterations:  pc.Iterations,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	}
}

type Policy struct {
	MinLength      int    `mapstructure:"min_length"`
	MaxLength      int    `mapstructure:"max_length"`
	Symbols        string `mapstructure:"symbols"`
	MaxRepeats     int    `mapstructure:"max_repeats"`
	MaxConsecutive int    `mapstructure:"max_consecutive"`
}

func (pc *Policy) AsPolicy() authsvc.Policy {
	p := authsvc.DefaultPolicy()
	if pc.MinLength > 0 {
		p.MinLength = pc.MinLength
	}
	if pc.MaxLength > 0 {
		p.MaxLength = pc.MaxLength
	}
	if pc.Symbols != "" {
		p.Symbols = pc.Symbols
	}
	if pc.MaxRepeats > 0 {
		p.MaxRepeats = pc.MaxRepeats
	}
	if pc.MaxConsecutive > 0 {
		p.MaxConsecutive = pc.MaxConsecutive
	}
	return p
}

type Auth struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
	CookieName     string        `mapstructure:"cookie_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptsWindow time.Duration `mapstructure:"attempts_window"`
}

type Config struct {
	App      App        `mapstructure:"app"`
	Server   Server     `mapstructure:"server"`
	DB       pg.Config  `mapstructure:"db"`
	Redis    rds.Config `mapstructure:"redis"`
	OTEL     OTEL       `mapstructure:"otel"`
	Log      Log        `mapstructure:"log"`
	Password Password   `mapstructure:"password"`
	Policy   Policy     `mapstructure:"policy"`
	Auth     Auth       `mapstructure:"auth"`
}

// AsServiceConfig assembles the auth service configuration from the
// password, policy and auth sections.
func (c *Config) AsServiceConfig() authsvc.Config {
	return authsvc.Config{
		Password:       c.Password.AsPasswordConfig(),
		Policy:         c.Policy.AsPolicy(),
		JWTSecret:      secret.New(c.Auth.JWTSecret),
		AccessTTL:      c.Auth.AccessTTL,
		RefreshTTL:     c.Auth.RefreshTTL,
		MaxAttempts:    c.Auth.MaxAttempts,
		AttemptsWindow: c.Auth.AttemptsWindow,
	}
}
