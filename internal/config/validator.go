package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults for omitted
// numeric knobs.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Target.Make == "" && cfg.Target.Model == "" && cfg.Target.Plate == "" {
		return fmt.Errorf("target requires at least one of make, model, plate")
	}

	// Pipeline defaults.
	if cfg.Pipeline.MissThreshold <= 0 {
		cfg.Pipeline.MissThreshold = 10
	}
	if cfg.Pipeline.RejectCooldownMs <= 0 {
		cfg.Pipeline.RejectCooldownMs = 1000
	}
	if cfg.Pipeline.AssocIoU <= 0 {
		cfg.Pipeline.AssocIoU = 0.3
	}
	if cfg.Pipeline.DupIoU <= 0 {
		cfg.Pipeline.DupIoU = 0.6
	}
	if cfg.Pipeline.DupCenterDist <= 0 {
		cfg.Pipeline.DupCenterDist = 0.15
	}
	if cfg.Pipeline.AssocIoU >= 1 || cfg.Pipeline.DupIoU >= 1 {
		return fmt.Errorf("pipeline overlap thresholds must be < 1")
	}

	// Drift defaults.
	if cfg.Drift.RepairStride <= 0 {
		cfg.Drift.RepairStride = 15
	}
	if cfg.Drift.SimThreshold <= 0 {
		cfg.Drift.SimThreshold = 0.90
	}
	if cfg.Drift.SimThreshold >= 1 {
		return fmt.Errorf("drift.sim_threshold must be < 1")
	}

	// Verification defaults.
	if cfg.Verify.MaxPrimaryRetries <= 0 {
		cfg.Verify.MaxPrimaryRetries = 3
	}
	if cfg.Verify.MaxSlowRetries <= 0 {
		cfg.Verify.MaxSlowRetries = 3
	}
	if cfg.Verify.CallTimeoutMs <= 0 {
		cfg.Verify.CallTimeoutMs = 5000
	}
	if cfg.Verify.GlobalIntervalMs <= 0 {
		cfg.Verify.GlobalIntervalMs = 2000
	}
	if cfg.Verify.PerCandidateIntervalMs <= 0 {
		cfg.Verify.PerCandidateIntervalMs = 800
	}
	if cfg.Verify.MinBoxArea <= 0 {
		cfg.Verify.MinBoxArea = 0.01
	}
	if cfg.Verify.MaxAspect <= 0 {
		cfg.Verify.MaxAspect = 3
	}

	if cfg.MQTT != nil {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is configured")
		}
		if cfg.MQTT.SnapshotsTopic == "" {
			cfg.MQTT.SnapshotsTopic = fmt.Sprintf("wayfinder/snapshots/%s", cfg.InstanceID)
		}
		if cfg.MQTT.EventsTopic == "" {
			cfg.MQTT.EventsTopic = fmt.Sprintf("wayfinder/events/%s", cfg.InstanceID)
		}
		if cfg.MQTT.EventQoS == 0 {
			cfg.MQTT.EventQoS = 1
		}
	}

	if cfg.WebSocket != nil && cfg.WebSocket.Addr == "" {
		return fmt.Errorf("websocket.addr is required when websocket is configured")
	}
	if cfg.Journal != nil && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is configured")
	}

	return nil
}
