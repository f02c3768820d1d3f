package tcp

import "github.com/quietloop/gosponge/pkg/seqnum"

// Defaults mirrored from the spec's constants table.
const (
	DefaultSendCapacity    = 64 * 1024
	DefaultRecvCapacity    = 64 * 1024
	DefaultRTTimeoutMillis = 1000
	DefaultMSS             = 1452
	DefaultMaxRetxAttempts = 8
)

// Config carries the tunables a Connection is constructed with. Fields
// are exported and yaml-tagged so pkg/config can decode a Config
// straight out of a site configuration file; FixedISN is excluded from
// that decode (it isn't a serializable site setting) and is meant to be
// set programmatically by tests.
type Config struct {
	SendCapacity    uint64 `yaml:"send_capacity"`
	RecvCapacity    uint64 `yaml:"recv_capacity"`
	RTTimeoutMillis uint32 `yaml:"rt_timeout_ms"`
	MSS             uint16 `yaml:"mss"`
	MaxRetxAttempts uint32 `yaml:"max_retx_attempts"`

	FixedISN    *seqnum.WrappingInt32 `yaml:"-"`
	FixedISNSet bool                  `yaml:"-"`
}

// DefaultConfig returns a Config populated with the spec's defaults.
func DefaultConfig() Config {
	return Config{
		SendCapacity:    DefaultSendCapacity,
		RecvCapacity:    DefaultRecvCapacity,
		RTTimeoutMillis: DefaultRTTimeoutMillis,
		MSS:             DefaultMSS,
		MaxRetxAttempts: DefaultMaxRetxAttempts,
	}
}

// WithDefaults fills in any zero-valued numeric field with the spec
// default. Used by pkg/config.Load, which may decode a YAML document
// that only overrides a subset of fields.
func (c Config) WithDefaults() Config {
	if c.SendCapacity == 0 {
		c.SendCapacity = DefaultSendCapacity
	}
	if c.RecvCapacity == 0 {
		c.RecvCapacity = DefaultRecvCapacity
	}
	if c.RTTimeoutMillis == 0 {
		c.RTTimeoutMillis = DefaultRTTimeoutMillis
	}
	if c.MSS == 0 {
		c.MSS = DefaultMSS
	}
	if c.MaxRetxAttempts == 0 {
		c.MaxRetxAttempts = DefaultMaxRetxAttempts
	}
	return c
}
