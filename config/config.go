// Package config loads and validates the detection pipeline's runtime
// configuration: detector thresholds, the fusion engine's accuracy/weight
// tables, VIP/critical host sets, and the worker/queue sizing knobs. It
// follows the teacher's pattern of an hjson file on disk, validated with
// struct tags, plus a .env-sourced Env block for deployment secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hjson/hjson-go/v4"
	"github.com/spf13/afero"

	"github.com/lateralwatch/engine/logger"
	"github.com/lateralwatch/engine/util"
)

// Version is set at build time via -ldflags.
var Version string

// DefaultConfigPath is where the CLI looks for a config file absent an
// override.
const DefaultConfigPath = "./config.hjson"

var errReadingConfigFile = errors.New("encountered an error while reading the config file")

type (
	// Config is the complete validated configuration tree for one pipeline
	// instance.
	Config struct {
		Env         Env               `json:"env" validate:"required"`
		Detectors   DetectorConfig    `json:"detectors" validate:"required"`
		Graph       GraphConfig       `json:"graph" validate:"required"`
		Baseline    BaselineConfig    `json:"baseline" validate:"required"`
		ThreatIntel ThreatIntelConfig `json:"threat_intel" validate:"required"`
		Fusion      FusionConfig      `json:"fusion" validate:"required"`
		AlertSink   AlertSinkConfig   `json:"alert_sink" validate:"required"`
		Pipeline    PipelineConfig    `json:"pipeline" validate:"required"`
	}

	// Env holds deployment-specific values sourced from the environment
	// (via godotenv in the CLI) rather than the hjson config file.
	Env struct {
		ClickHouseDSN      string `validate:"required"`
		ClickHouseUsername string `json:"-"`
		ClickHousePassword string `json:"-"`
		LogLevel           int8   `validate:"min=-1,max=5"`
		StateDir           string `validate:"required"`
	}

	// DetectorConfig carries the exact thresholds named in spec §4.2 for
	// the five rule-based detectors (C2).
	DetectorConfig struct {
		AdminInterestingPorts  []int    `json:"admin_interesting_ports" validate:"required,gt=0"`
		LateralScanThreshold   int      `json:"lateral_scan_threshold" validate:"gte=1"`
		LateralScanExampleSize int      `json:"lateral_scan_example_size" validate:"gte=1"`
		PassTheHashHostCount   int      `json:"pass_the_hash_host_count" validate:"gte=2"`
		AdminShares            []string `json:"admin_shares" validate:"required,gt=0"`
		PSExecShareCount       int      `json:"psexec_share_count" validate:"gte=2"`
		SMBBruteforceThreshold int      `json:"smb_bruteforce_threshold" validate:"gte=1"`
		WMIEndpoints           []string `json:"wmi_endpoints" validate:"required,gt=0"`
		WMIEndpointCount       int      `json:"wmi_endpoint_count" validate:"gte=2"`
		RDPHoppingThreshold    int      `json:"rdp_hopping_threshold" validate:"gte=1"`
		RDPExampleSize         int      `json:"rdp_example_size" validate:"gte=1"`
	}

	// GraphConfig carries the five communication-graph analyses' thresholds
	// (C3, spec §4.3).
	GraphConfig struct {
		FanoutThreshold            int      `json:"fanout_threshold" validate:"gte=1"`
		MultiHopCutoff             int      `json:"multi_hop_cutoff" validate:"gte=1"`
		MinHops                    int      `json:"min_hops" validate:"gte=1"`
		RareCommunicationThreshold float64  `json:"rare_communication_threshold" validate:"gte=0,lte=1"`
		PivotBetweennessThreshold  float64  `json:"pivot_betweenness_threshold" validate:"gte=0,lte=1"`
		PivotMinOutDegree          int      `json:"pivot_min_out_degree" validate:"gte=1"`
		CycleMaxLength             int      `json:"cycle_max_length" validate:"gte=3"`
		CycleMaxResults            int      `json:"cycle_max_results" validate:"gte=1"`
		// NormalPaths allowlists known-good edges out of RareCommunications,
		// each entry formatted "source->target".
		NormalPaths []string `json:"normal_paths"`
	}

	// BaselineConfig carries the per-host and per-hour anomaly thresholds
	// (C5, spec §4.5).
	BaselineConfig struct {
		ZThreshold                float64 `json:"z_threshold" validate:"gt=0"`
		AccumulatedScoreThreshold float64 `json:"accumulated_score_threshold" validate:"gt=0"`
		HourlyMinSamples          int     `json:"hourly_min_samples" validate:"gte=1"`
		NightHourStart            int     `json:"night_hour_start" validate:"gte=0,lte=23"`
		NightHourEnd              int     `json:"night_hour_end" validate:"gte=0,lte=23"`
		NightHourZThreshold       float64 `json:"night_hour_z_threshold" validate:"gt=0"`
		BusinessHourStart         int     `json:"business_hour_start" validate:"gte=0,lte=23"`
		BusinessHourEnd           int     `json:"business_hour_end" validate:"gte=0,lte=23"`
		BusinessHourZThreshold    float64 `json:"business_hour_z_threshold" validate:"gt=0"`
		DefaultHourZThreshold     float64 `json:"default_hour_z_threshold" validate:"gt=0"`
	}

	// ThreatIntelRiskWeights are the additive per-kind risk contributions
	// from spec §4.6.
	ThreatIntelRiskWeights struct {
		MaliciousSourceIP       float64 `json:"malicious_source_ip" validate:"gte=0"`
		MaliciousDestIP         float64 `json:"malicious_dest_ip" validate:"gte=0"`
		MaliciousDomain         float64 `json:"malicious_domain" validate:"gte=0"`
		MaliciousHash           float64 `json:"malicious_hash" validate:"gte=0"`
		KnownToolTLSFingerprint float64 `json:"known_tool_tls_fingerprint" validate:"gte=0"`
		SuspiciousUserAgent     float64 `json:"suspicious_user_agent" validate:"gte=0"`
		SuspiciousPort          float64 `json:"suspicious_port" validate:"gte=0"`
	}

	// ThreatIntelConfig configures C6's cache and enrichment behavior.
	ThreatIntelConfig struct {
		CacheTTL            time.Duration          `json:"cache_ttl" validate:"gt=0"`
		RiskScoreGate       float64                `json:"risk_score_gate" validate:"gte=0"`
		RiskScoreNormalizer float64                `json:"risk_score_normalizer" validate:"gt=0"`
		Weights             ThreatIntelRiskWeights `json:"weights" validate:"required"`
		FeedURLs            []string               `json:"feed_urls" validate:"omitempty,dive,url"`
		FeedRefreshInterval time.Duration          `json:"feed_refresh_interval" validate:"gte=0"`
		FeedRefreshTimeout  time.Duration          `json:"feed_refresh_timeout" validate:"gte=0"`
	}

	// DetectorAccuracy is one row of the fusion engine's per-detector
	// Bayesian/weighted-vote calibration table (spec §4.7).
	DetectorAccuracy struct {
		TPR    float64 `json:"tpr" validate:"gt=0,lte=1"`
		FPR    float64 `json:"fpr" validate:"gt=0,lt=1"`
		Weight float64 `json:"weight" validate:"gt=0"`
	}

	// ActionThresholds are the action-ladder cut points from spec §4.7,
	// evaluated top-down.
	ActionThresholds struct {
		BlockImmediately float64 `json:"block_immediately" validate:"gt=0,lte=1"`
		AlertSOCUrgent   float64 `json:"alert_soc_urgent" validate:"gt=0,lte=1"`
		AlertSOCHigh     float64 `json:"alert_soc_high" validate:"gt=0,lte=1"`
		AlertSOCNormal   float64 `json:"alert_soc_normal" validate:"gt=0,lte=1"`
		MonitorClosely   float64 `json:"monitor_closely" validate:"gt=0,lte=1"`
	}

	// ContextualAdjustments are the three multipliers applied, in order,
	// after the base score is computed (spec §4.7).
	ContextualAdjustments struct {
		CriticalTargetMultiplier float64 `json:"critical_target_multiplier" validate:"gt=1"`
		RepeatOffenderMultiplier float64 `json:"repeat_offender_multiplier" validate:"gt=1"`
		OffHoursMultiplier       float64 `json:"off_hours_multiplier" validate:"gt=1"`
		RepeatOffenderThreshold  int     `json:"repeat_offender_threshold" validate:"gte=1"`
		OffHoursScoreFloor       float64 `json:"off_hours_score_floor" validate:"gte=0,lte=1"`
		BusinessHourStart        int     `json:"business_hour_start" validate:"gte=0,lte=23"`
		BusinessHourEnd          int     `json:"business_hour_end" validate:"gte=0,lte=23"`
	}

	// FusionConfig is C7's complete calibration: the Bayesian prior, the
	// per-detector accuracy/weight table, the action ladder, and the
	// contextual business rules.
	FusionConfig struct {
		Prior              float64                     `json:"prior" validate:"gt=0,lt=1"`
		DetectorAccuracy   map[string]DetectorAccuracy `json:"detector_accuracy" validate:"required,gt=0,dive,required"`
		ActionThresholds   ActionThresholds            `json:"action_thresholds" validate:"required"`
		Contextual         ContextualAdjustments       `json:"contextual" validate:"required"`
		VIPHosts           []string                    `json:"vip_hosts"`
		CriticalServers    []string                    `json:"critical_servers"`
		AlertHistoryWindow time.Duration               `json:"alert_history_window" validate:"gt=0"`
	}

	// AlertSinkConfig configures C8's delivery, retry, and dedup behavior.
	AlertSinkConfig struct {
		QueueCapacity      int           `json:"queue_capacity" validate:"gte=1"`
		BackoffInitial     time.Duration `json:"backoff_initial" validate:"gt=0"`
		BackoffMax         time.Duration `json:"backoff_max" validate:"gtfield=BackoffInitial"`
		BackoffMaxRetries  int           `json:"backoff_max_retries" validate:"gte=0"`
		FlushDeadline      time.Duration `json:"flush_deadline" validate:"gt=0"`
		ExternalTimeout    time.Duration `json:"external_timeout" validate:"gt=0"`
		ClickHouseDatabase string        `json:"clickhouse_database" validate:"required"`
		ClickHouseTable    string        `json:"clickhouse_table" validate:"required"`
	}

	// PipelineConfig sizes the worker-lane pool and shutdown sequencing
	// from spec §5.
	PipelineConfig struct {
		WorkerLanes           int           `json:"worker_lanes" validate:"gte=1"`
		LaneBufferSize        int           `json:"lane_buffer_size" validate:"gte=1"`
		ShutdownDeadline      time.Duration `json:"shutdown_deadline" validate:"gt=0"`
		MinDetectionsToFuse   int           `json:"min_detections_to_fuse" validate:"gte=1"`
		GraphAnalysisInterval int           `json:"graph_analysis_interval" validate:"gte=1"`
	}
)

// ReadFileConfig reads and validates the config file at path.
func ReadFileConfig(afs afero.Fs, path string) (*Config, error) {
	contents, err := util.ReadFile(afs, path)
	if err != nil {
		return nil, err
	}

	cfg := GetDefaultConfig()
	if err := unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("%w, located by default at '%s', please correct the issue in the config and try again:\n\t- %w", errReadingConfigFile, path, err)
	}
	if err := cfg.setEnv(); err != nil {
		return nil, fmt.Errorf("unable to set environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadConfigFromMemory parses already-loaded hjson bytes, using env as the
// Env block instead of reading it from the process environment (used by
// tests).
func ReadConfigFromMemory(data []byte, env Env) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func unmarshal(data []byte, cfg *Config) error {
	if err := hjson.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

func (c *Config) setEnv() error {
	dsn := os.Getenv("CLICKHOUSE_DSN")
	if dsn == "" {
		return errors.New("environment variable CLICKHOUSE_DSN not set")
	}
	c.Env.ClickHouseDSN = dsn
	c.Env.ClickHouseUsername = os.Getenv("CLICKHOUSE_USERNAME")
	c.Env.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")

	stateDir := os.Getenv("STATE_DIR")
	if stateDir == "" {
		stateDir = "./state"
	}
	c.Env.StateDir = stateDir

	logLevel := int8(1)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		var parsed int
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			logLevel = int8(parsed)
		}
	}
	c.Env.LogLevel = logLevel
	return nil
}

// Validate runs struct-tag validation plus the cross-field checks that
// validator tags alone can't express.
func (cfg *Config) Validate() error {
	zlog := logger.GetLogger()
	zlog.Debug().Msg("validating config")

	validate := NewValidator()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Graph.MultiHopCutoff < cfg.Graph.MinHops {
		return fmt.Errorf("graph.multi_hop_cutoff (%d) must be >= graph.min_hops (%d)", cfg.Graph.MultiHopCutoff, cfg.Graph.MinHops)
	}

	return nil
}

// NewValidator returns a validator configured with this module's custom
// rules.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// GetDefaultConfig returns a Config populated with the exact default
// thresholds and calibration constants named throughout spec §4.
func GetDefaultConfig() Config {
	if Version == "" {
		Version = "dev"
	}
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Detectors: DetectorConfig{
			AdminInterestingPorts:  []int{22, 135, 139, 445, 3389, 5985, 5986},
			LateralScanThreshold:   20,
			LateralScanExampleSize: 10,
			PassTheHashHostCount:   3,
			AdminShares:            []string{"ADMIN$", "C$", "IPC$"},
			PSExecShareCount:       2,
			SMBBruteforceThreshold: 5,
			WMIEndpoints:           []string{"IWbemServices", "ISystemActivator", "IWbemLevel1Login"},
			WMIEndpointCount:       2,
			RDPHoppingThreshold:    5,
			RDPExampleSize:         10,
		},
		Graph: GraphConfig{
			FanoutThreshold:            20,
			MultiHopCutoff:             6,
			MinHops:                    3,
			RareCommunicationThreshold: 0.95,
			PivotBetweennessThreshold:  0.1,
			PivotMinOutDegree:          3,
			CycleMaxLength:             8,
			CycleMaxResults:            1000,
			NormalPaths:                []string{},
		},
		Baseline: BaselineConfig{
			ZThreshold:                3,
			AccumulatedScoreThreshold: 10,
			HourlyMinSamples:          10,
			NightHourStart:            2,
			NightHourEnd:              6,
			NightHourZThreshold:       2,
			BusinessHourStart:         9,
			BusinessHourEnd:           17,
			BusinessHourZThreshold:    5,
			DefaultHourZThreshold:     3,
		},
		ThreatIntel: ThreatIntelConfig{
			CacheTTL:            24 * time.Hour,
			RiskScoreGate:       30,
			RiskScoreNormalizer: 100,
			Weights: ThreatIntelRiskWeights{
				MaliciousSourceIP:       50,
				MaliciousDestIP:         30,
				MaliciousDomain:         40,
				MaliciousHash:           60,
				KnownToolTLSFingerprint: 45,
				SuspiciousUserAgent:     20,
				SuspiciousPort:          15,
			},
			FeedURLs:            []string{},
			FeedRefreshInterval: 1 * time.Hour,
			FeedRefreshTimeout:  10 * time.Second,
		},
		Fusion: FusionConfig{
			Prior: 1e-3,
			DetectorAccuracy: map[string]DetectorAccuracy{
				"zeek_scan":           {TPR: 0.90, FPR: 0.10, Weight: 1.0},
				"zeek_auth":           {TPR: 0.90, FPR: 0.08, Weight: 1.2},
				"zeek_exec":           {TPR: 0.85, FPR: 0.12, Weight: 1.3},
				"zeek_dpi":            {TPR: 0.80, FPR: 0.15, Weight: 0.9},
				"zeek_encrypted":      {TPR: 0.75, FPR: 0.20, Weight: 0.8},
				"zeek_zeroday":        {TPR: 0.70, FPR: 0.25, Weight: 0.7},
				"ml_anomaly":          {TPR: 0.85, FPR: 0.10, Weight: 1.1},
				"graph_analysis":      {TPR: 0.80, FPR: 0.12, Weight: 1.0},
				"threat_intel":        {TPR: 0.95, FPR: 0.02, Weight: 1.5},
				"baseline_deviation":  {TPR: 0.75, FPR: 0.18, Weight: 0.9},
			},
			ActionThresholds: ActionThresholds{
				BlockImmediately: 0.9999,
				AlertSOCUrgent:   0.99,
				AlertSOCHigh:     0.95,
				AlertSOCNormal:   0.90,
				MonitorClosely:   0.80,
			},
			Contextual: ContextualAdjustments{
				CriticalTargetMultiplier: 1.3,
				RepeatOffenderMultiplier: 1.2,
				OffHoursMultiplier:       1.15,
				RepeatOffenderThreshold:  3,
				OffHoursScoreFloor:       0.80,
				BusinessHourStart:        9,
				BusinessHourEnd:          17,
			},
			VIPHosts:           []string{},
			CriticalServers:    []string{},
			AlertHistoryWindow: 24 * time.Hour,
		},
		AlertSink: AlertSinkConfig{
			QueueCapacity:      1000,
			BackoffInitial:     1 * time.Second,
			BackoffMax:         30 * time.Second,
			BackoffMaxRetries:  5,
			FlushDeadline:      30 * time.Second,
			ExternalTimeout:    10 * time.Second,
			ClickHouseDatabase: "lateralwatch",
			ClickHouseTable:    "lateral_movement_alerts",
		},
		Pipeline: PipelineConfig{
			WorkerLanes:           8,
			LaneBufferSize:        1024,
			ShutdownDeadline:      30 * time.Second,
			MinDetectionsToFuse:   2,
			GraphAnalysisInterval: 500,
		},
	}
}
