// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Target Target `yaml:"target"`
	Auth   Auth   `yaml:"auth"`
	Marker Marker `yaml:"marker"`
	ValKey ValKey `yaml:"valkey"`
	Probe  Probe  `yaml:"probe"`
}

// Target is the ERP API the client talks to.
type Target struct {
	BaseURL  string        `yaml:"baseURL"`
	TenantID string        `yaml:"tenantID"`
	LoginURL string        `yaml:"loginURL"`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
}

type Auth struct {
	Username commoncfg.SourceRef `yaml:"username"`
	Password commoncfg.SourceRef `yaml:"password"`

	ExpiryBuffer     time.Duration `yaml:"expiryBuffer" default:"60s"`
	RenewTimeout     time.Duration `yaml:"renewTimeout" default:"15s"`
	MinRenewInterval time.Duration `yaml:"minRenewInterval" default:"1s"`
	MaxQueued        int           `yaml:"maxQueued" default:"256"`
}

type MarkerType string

const (
	MarkerTypeMemory MarkerType = "memory"
	MarkerTypeValkey MarkerType = "valkey"
)

// Marker selects where the "previously logged in" marker is kept.
type Marker struct {
	Type MarkerType `yaml:"type" default:"memory"`
	ID   string     `yaml:"id" default:"default"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"session-client"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type Probe struct {
	Interval      time.Duration `yaml:"interval" default:"30s"`
	Paths         []string      `yaml:"paths"`
	Concurrency   int           `yaml:"concurrency" default:"4"`
	RatePerSecond float64       `yaml:"ratePerSecond" default:"10"`
	Relogin       bool          `yaml:"relogin" default:"true"`
}
