// Package config loads and validates the wayfinder configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/wayfinder/internal/types"
)

// Config is the complete wayfinder configuration.
type Config struct {
	InstanceID string           `yaml:"instance_id"`
	Target     types.TargetSpec `yaml:"target"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Drift      DriftConfig      `yaml:"drift"`
	Verify     VerifyConfig     `yaml:"verify"`
	MQTT       *MQTTConfig      `yaml:"mqtt,omitempty"`
	WebSocket  *WSConfig        `yaml:"websocket,omitempty"`
	Journal    *JournalConfig   `yaml:"journal,omitempty"`
}

// PipelineConfig contains candidate lifecycle settings.
type PipelineConfig struct {
	MissThreshold    int      `yaml:"miss_threshold"`     // frames without detection before removal/lost
	RejectCooldownMs int      `yaml:"reject_cooldown_ms"` // rejected candidate retention
	AssocIoU         float64  `yaml:"assoc_iou"`          // detection-to-candidate association overlap
	DupIoU           float64  `yaml:"dup_iou"`            // duplicate suppression overlap
	DupCenterDist    float64  `yaml:"dup_center_dist"`    // duplicate suppression center distance
	DetectorFilter   []string `yaml:"detector_filter"`    // class names fed to the detector
}

// DriftConfig contains drift-repair settings.
type DriftConfig struct {
	RepairStride int     `yaml:"repair_stride"` // frames between repair cycles
	SimThreshold float64 `yaml:"sim_threshold"` // cosine similarity, strict
}

// VerifyConfig contains verification escalation and rate limits.
type VerifyConfig struct {
	MaxPrimaryRetries      int     `yaml:"max_primary_retries"`
	MaxSlowRetries         int     `yaml:"max_slow_retries"`
	CallTimeoutMs          int     `yaml:"call_timeout_ms"`
	GlobalIntervalMs       int     `yaml:"global_interval_ms"`
	PerCandidateIntervalMs int     `yaml:"per_candidate_interval_ms"`
	MinBoxArea             float64 `yaml:"min_box_area"`
	MaxAspect              float64 `yaml:"max_aspect"`
}

// MQTTConfig contains broker settings for the snapshot emitter.
type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	SnapshotsTopic string `yaml:"snapshots_topic"`
	EventsTopic    string `yaml:"events_topic"`
	SnapshotQoS    byte   `yaml:"snapshot_qos"`
	EventQoS       byte   `yaml:"event_qos"`
}

// WSConfig contains the websocket hub listen address.
type WSConfig struct {
	Addr string `yaml:"addr"`
}

// JournalConfig contains the sqlite session journal path.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// RejectCooldown returns the cooldown as a duration.
func (p PipelineConfig) RejectCooldown() time.Duration {
	return time.Duration(p.RejectCooldownMs) * time.Millisecond
}

// CallTimeout returns the per-call bound as a duration.
func (v VerifyConfig) CallTimeout() time.Duration {
	return time.Duration(v.CallTimeoutMs) * time.Millisecond
}

// GlobalInterval returns the batch rate limit as a duration.
func (v VerifyConfig) GlobalInterval() time.Duration {
	return time.Duration(v.GlobalIntervalMs) * time.Millisecond
}

// PerCandidateInterval returns the per-candidate rate limit as a
// duration.
func (v VerifyConfig) PerCandidateInterval() time.Duration {
	return time.Duration(v.PerCandidateIntervalMs) * time.Millisecond
}
