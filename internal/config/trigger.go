// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"time"
)

// Trigger is the per-client firing specification: either a cron field
// map or an interval field map, mirroring the operator configuration
// format `{trigger_name: {field: value}}`.
type Trigger struct {
	Cron     map[string]string `mapstructure:"cron"`
	Interval map[string]int    `mapstructure:"interval"`
}

// IsZero reports whether no trigger is configured.
func (t Trigger) IsZero() bool {
	return len(t.Cron) == 0 && len(t.Interval) == 0
}

// cronFieldOrder lists the six scheduler spec positions and the
// accepted configuration field name for each.
var cronFieldOrder = []string{"second", "minute", "hour", "day", "month", "day_of_week"}

// Spec renders the trigger as a seconds-resolution cron spec or an
// "@every" interval for the scheduler.
func (t Trigger) Spec() (string, error) {
	switch {
	case len(t.Cron) > 0 && len(t.Interval) > 0:
		return "", fmt.Errorf("config: trigger carries both cron and interval")

	case len(t.Interval) > 0:
		var d time.Duration
		for field, value := range t.Interval {
			switch field {
			case "seconds":
				d += time.Duration(value) * time.Second
			case "minutes":
				d += time.Duration(value) * time.Minute
			case "hours":
				d += time.Duration(value) * time.Hour
			default:
				return "", fmt.Errorf("config: unknown interval field %q", field)
			}
		}
		if d <= 0 {
			return "", fmt.Errorf("config: interval trigger must be positive")
		}
		return "@every " + d.String(), nil

	case len(t.Cron) > 0:
		for field := range t.Cron {
			if !validCronField(field) {
				return "", fmt.Errorf("config: unknown cron field %q", field)
			}
		}
		spec := ""
		for i, field := range cronFieldOrder {
			value, ok := t.Cron[field]
			if !ok {
				value = "*"
				if field == "second" {
					value = "0"
				}
			}
			if i > 0 {
				spec += " "
			}
			spec += value
		}
		return spec, nil

	default:
		return "", fmt.Errorf("config: trigger has no cron or interval fields")
	}
}

func validCronField(field string) bool {
	for _, f := range cronFieldOrder {
		if f == field {
			return true
		}
	}
	return false
}
