// Package config holds every operator-tunable knob, loaded from an
// optional config file (yaml/json/toml) with environment overrides.
package config

import "time"

// Config is the full tunable surface. Zero values mean "unspecified" and
// are replaced by Defaults before use.
type Config struct {
	// Paths and endpoints.
	ModelsDir  string `json:"models_dir" yaml:"models_dir" toml:"models_dir" envconfig:"LEXD_MODELS_DIR,optional"`
	MailboxDir string `json:"mailbox_dir" yaml:"mailbox_dir" toml:"mailbox_dir" envconfig:"LEXD_MAILBOX_DIR,optional"`
	RunDir     string `json:"run_dir" yaml:"run_dir" toml:"run_dir" envconfig:"LEXD_RUN_DIR,optional"`
	// Operator HTTP listen address for the supervisor.
	OperatorAddr string `json:"operator_addr" yaml:"operator_addr" toml:"operator_addr" envconfig:"LEXD_OPERATOR_ADDR,optional"`
	// Health probe URL of the API process.
	APIProbeURL string `json:"api_probe_url" yaml:"api_probe_url" toml:"api_probe_url" envconfig:"LEXD_API_PROBE_URL,optional"`

	// Commands the supervisor launches and recovers. Arguments are
	// whitespace-separated; the first token is the binary.
	HostCommand string `json:"host_command" yaml:"host_command" toml:"host_command" envconfig:"LEXD_HOST_COMMAND,optional"`
	APICommand  string `json:"api_command" yaml:"api_command" toml:"api_command" envconfig:"LEXD_API_COMMAND,optional"`

	// Explicit slot assignments, bypassing filename classification.
	EmbedderModel  string `json:"embedder_model" yaml:"embedder_model" toml:"embedder_model" envconfig:"LEXD_EMBEDDER_MODEL,optional"`
	UtilityModel   string `json:"utility_model" yaml:"utility_model" toml:"utility_model" envconfig:"LEXD_UTILITY_MODEL,optional"`
	ReasoningModel string `json:"reasoning_model" yaml:"reasoning_model" toml:"reasoning_model" envconfig:"LEXD_REASONING_MODEL,optional"`

	// Heartbeat and polling cadence.
	HeartbeatTTL   time.Duration `json:"heartbeat_ttl" yaml:"heartbeat_ttl" toml:"heartbeat_ttl" envconfig:"LEXD_HEARTBEAT_TTL,optional"`
	HeartbeatEvery time.Duration `json:"heartbeat_every" yaml:"heartbeat_every" toml:"heartbeat_every" envconfig:"LEXD_HEARTBEAT_EVERY,optional"`
	PollEvery      time.Duration `json:"poll_every" yaml:"poll_every" toml:"poll_every" envconfig:"LEXD_POLL_EVERY,optional"`

	// Memory policy.
	MemoryCeilingFrac float64 `json:"memory_ceiling_frac" yaml:"memory_ceiling_frac" toml:"memory_ceiling_frac" envconfig:"LEXD_MEMORY_CEILING_FRAC,optional"`
	LowMemFreeMB      int     `json:"low_mem_free_mb" yaml:"low_mem_free_mb" toml:"low_mem_free_mb" envconfig:"LEXD_LOW_MEM_FREE_MB,optional"`
	LowMemShrinkFrac  float64 `json:"low_mem_shrink_frac" yaml:"low_mem_shrink_frac" toml:"low_mem_shrink_frac" envconfig:"LEXD_LOW_MEM_SHRINK_FRAC,optional"`
	MinTokensFloor    int     `json:"min_tokens_floor" yaml:"min_tokens_floor" toml:"min_tokens_floor" envconfig:"LEXD_MIN_TOKENS_FLOOR,optional"`
	MaxTokensDefault  int     `json:"max_tokens_default" yaml:"max_tokens_default" toml:"max_tokens_default" envconfig:"LEXD_MAX_TOKENS_DEFAULT,optional"`

	// Proxy timeouts: loads are long (cold downloads), inference short.
	LoadTimeout    time.Duration `json:"load_timeout" yaml:"load_timeout" toml:"load_timeout" envconfig:"LEXD_LOAD_TIMEOUT,optional"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout" envconfig:"LEXD_REQUEST_TIMEOUT,optional"`

	// Monitor and recovery.
	MonitorEvery        time.Duration `json:"monitor_every" yaml:"monitor_every" toml:"monitor_every" envconfig:"LEXD_MONITOR_EVERY,optional"`
	FailureThreshold    int           `json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold" envconfig:"LEXD_FAILURE_THRESHOLD,optional"`
	RecoveryCooldown    time.Duration `json:"recovery_cooldown" yaml:"recovery_cooldown" toml:"recovery_cooldown" envconfig:"LEXD_RECOVERY_COOLDOWN,optional"`
	MaxRecoveryAttempts int           `json:"max_recovery_attempts" yaml:"max_recovery_attempts" toml:"max_recovery_attempts" envconfig:"LEXD_MAX_RECOVERY_ATTEMPTS,optional"`
	RingSize            int           `json:"ring_size" yaml:"ring_size" toml:"ring_size" envconfig:"LEXD_RING_SIZE,optional"`
	HostCheckHard       bool          `json:"host_check_hard" yaml:"host_check_hard" toml:"host_check_hard" envconfig:"LEXD_HOST_CHECK_HARD,optional"`

	// Startup coordinator.
	HostBootTimeout time.Duration `json:"host_boot_timeout" yaml:"host_boot_timeout" toml:"host_boot_timeout" envconfig:"LEXD_HOST_BOOT_TIMEOUT,optional"`
	APIBootTimeout  time.Duration `json:"api_boot_timeout" yaml:"api_boot_timeout" toml:"api_boot_timeout" envconfig:"LEXD_API_BOOT_TIMEOUT,optional"`
	PhaseAttempts   int           `json:"phase_attempts" yaml:"phase_attempts" toml:"phase_attempts" envconfig:"LEXD_PHASE_ATTEMPTS,optional"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" envconfig:"LEXD_LOG_LEVEL,optional"`
}

// Defaults fills every unspecified field with its documented default.
func (c Config) Defaults() Config {
	if c.ModelsDir == "" {
		c.ModelsDir = "~/models/llm"
	}
	if c.MailboxDir == "" {
		c.MailboxDir = "/tmp/lexd/mailbox"
	}
	if c.RunDir == "" {
		c.RunDir = "/tmp/lexd/run"
	}
	if c.OperatorAddr == "" {
		c.OperatorAddr = ":8090"
	}
	if c.APIProbeURL == "" {
		c.APIProbeURL = "http://127.0.0.1:8080/healthz"
	}
	if c.HeartbeatTTL <= 0 {
		c.HeartbeatTTL = 30 * time.Second
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 5 * time.Second
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 100 * time.Millisecond
	}
	if c.MemoryCeilingFrac <= 0 {
		c.MemoryCeilingFrac = 0.85
	}
	if c.LowMemFreeMB <= 0 {
		c.LowMemFreeMB = 1024
	}
	if c.LowMemShrinkFrac <= 0 {
		c.LowMemShrinkFrac = 0.5
	}
	if c.MinTokensFloor <= 0 {
		c.MinTokensFloor = 64
	}
	if c.MaxTokensDefault <= 0 {
		c.MaxTokensDefault = 512
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 120 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.MonitorEvery <= 0 {
		c.MonitorEvery = 30 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.RecoveryCooldown <= 0 {
		c.RecoveryCooldown = 300 * time.Second
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = 5
	}
	if c.RingSize <= 0 {
		c.RingSize = 50
	}
	if c.HostBootTimeout <= 0 {
		c.HostBootTimeout = 180 * time.Second
	}
	if c.APIBootTimeout <= 0 {
		c.APIBootTimeout = 60 * time.Second
	}
	if c.PhaseAttempts <= 0 {
		c.PhaseAttempts = 3
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
