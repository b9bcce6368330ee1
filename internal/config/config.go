// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wontakkang/jais-backend-sub000/internal/memmap"
	"github.com/wontakkang/jais-backend-sub000/mcu"
)

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Clients   []ClientConfig  `mapstructure:"clients"`
	MCUs      []MCUConfig     `mapstructure:"mcus"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// RedisConfig selects the external KV backend. Disabled means the
// in-process store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig points the aggregate tables at MySQL. Disabled means
// the in-process store.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	// SaveOffsetHours shifts timestamps when serializing rows to the
	// database (display convention). Env: DB_SAVE_OFFSET_HOURS.
	SaveOffsetHours int `mapstructure:"save_offset_hours"`
}

// SchedulerConfig defines job timing behavior
type SchedulerConfig struct {
	// Timezone is the bucket-flooring zone. Env: REDIS_TIME_ZONE.
	Timezone      string        `mapstructure:"timezone"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// Location resolves the configured IANA zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// SnapshotConfig enables the warm-start KV snapshot file.
type SnapshotConfig struct {
	Path     string `mapstructure:"path"`
	MaxSlots int    `mapstructure:"max_slots"`
}

// ClientConfig defines one PLC endpoint with its read plan and
// memory map.
type ClientConfig struct {
	ID           int           `mapstructure:"id"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	IsUsed       bool          `mapstructure:"is_used"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryOnEmpty bool          `mapstructure:"retry_on_empty"`
	Retries      int           `mapstructure:"retries"`
	Cron         Trigger       `mapstructure:"cron"`
	// SetupCron, when set, adds the shorter-cadence job polling only
	// control variables.
	SetupCron    Trigger        `mapstructure:"setup_cron"`
	Blocks       []BlockConfig  `mapstructure:"blocks"`
	MemoryGroups []GroupConfig  `mapstructure:"memory_groups"`
}

// Address returns the host:port endpoint.
func (c *ClientConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BlockConfig is one read descriptor.
type BlockConfig struct {
	Memory   string `mapstructure:"memory"`
	Address  int    `mapstructure:"address"`
	Count    int    `mapstructure:"count"`
	FuncName string `mapstructure:"func_name"`
	GroupID  int    `mapstructure:"group_id"`
}

// GroupConfig defines one memory group of the decode context.
type GroupConfig struct {
	ID           int              `mapstructure:"id"`
	Name         string           `mapstructure:"name"`
	SizeByte     int              `mapstructure:"size_byte"`
	StartAddress float64          `mapstructure:"start_address"`
	Variables    []VariableConfig `mapstructure:"variables"`
}

// MemoryGroup converts and validates the group for the decoder.
func (g GroupConfig) MemoryGroup(clientID int) (*memmap.MemoryGroup, error) {
	mg := &memmap.MemoryGroup{
		ID:           g.ID,
		ClientID:     clientID,
		Name:         g.Name,
		SizeByte:     g.SizeByte,
		StartAddress: g.StartAddress,
	}
	for _, v := range g.Variables {
		mg.Variables = append(mg.Variables, memmap.Variable{
			ID:                  v.ID,
			Name:                v.Name,
			Device:              v.Device,
			Address:             v.Address,
			DataType:            memmap.DataType(v.DataType),
			Unit:                memmap.Unit(v.Unit),
			Scale:               v.Scale,
			Offset:              v.Offset,
			Attributes:          v.Attributes,
			Min:                 v.Min,
			Max:                 v.Max,
			UseGroupBaseAddress: v.UseGroupBaseAddress,
		})
	}
	if err := mg.Validate(); err != nil {
		return nil, fmt.Errorf("config: group %s: %w", g.Name, err)
	}
	return mg, nil
}

// VariableConfig defines one typed view into a group.
type VariableConfig struct {
	ID                  int      `mapstructure:"id"`
	Name                string   `mapstructure:"name"`
	Device              string   `mapstructure:"device"`
	Address             float64  `mapstructure:"address"`
	DataType            string   `mapstructure:"data_type"`
	Unit                string   `mapstructure:"unit"`
	Scale               float64  `mapstructure:"scale"`
	Offset              string   `mapstructure:"offset"`
	Attributes          []string `mapstructure:"attributes"`
	Min                 float64  `mapstructure:"min"`
	Max                 float64  `mapstructure:"max"`
	UseGroupBaseAddress bool     `mapstructure:"use_group_base_address"`
}

// MCUConfig defines one serial bus with its device nodes.
type MCUConfig struct {
	Device                  string        `mapstructure:"device"`
	BaudRate                int           `mapstructure:"baud_rate"`
	DataBits                int           `mapstructure:"data_bits"`
	StopBits                int           `mapstructure:"stop_bits"`
	Parity                  string        `mapstructure:"parity"`
	Checksum                string        `mapstructure:"checksum"`
	ResponseTimeout         time.Duration `mapstructure:"response_timeout"`
	FirmwareResponseTimeout time.Duration `mapstructure:"firmware_response_timeout"`
	MaxPacketSize           int           `mapstructure:"max_packet_size"`
	// Nodes are 8-byte device serial numbers in hex.
	Nodes []string `mapstructure:"nodes"`
}

// SerialNumbers parses the configured node serials.
func (m MCUConfig) SerialNumbers() ([]mcu.SerialNumber, error) {
	out := make([]mcu.SerialNumber, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		s, err := ParseSerialNumber(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseSerialNumber decodes an 8-byte hex serial, tolerating spaces
// and colon separators.
func ParseSerialNumber(s string) (mcu.SerialNumber, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	raw, err := hex.DecodeString(clean)
	if err != nil || len(raw) != 8 {
		return mcu.SerialNumber{}, fmt.Errorf("config: bad node serial %q: want 8 hex bytes", s)
	}
	var out mcu.SerialNumber
	copy(out[:], raw)
	return out, nil
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/xgtcore/")
		v.AddConfigPath("$HOME/.xgtcore")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.save_offset_hours", 9)
	v.SetDefault("scheduler.timezone", "Asia/Seoul")
	v.SetDefault("scheduler.shutdown_grace", 30*time.Second)

	// Environment knobs kept from the operator tooling.
	_ = v.BindEnv("database.save_offset_hours", "DB_SAVE_OFFSET_HOURS")
	_ = v.BindEnv("scheduler.timezone", "REDIS_TIME_ZONE")
	_ = v.BindEnv("log.level", "SCHEDULER_LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to found config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Clients {
		fixupClient(&config.Clients[i])
	}
	for i := range config.MCUs {
		fixupMCU(&config.MCUs[i])
	}

	return &config, nil
}

func fixupClient(c *ClientConfig) {
	if c.Port == 0 {
		c.Port = 2004
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

func fixupMCU(m *MCUConfig) {
	m.Parity = strings.ToUpper(m.Parity)
	if m.BaudRate == 0 {
		m.BaudRate = 19200
	}
	if m.DataBits == 0 {
		m.DataBits = 8
	}
	if m.StopBits == 0 {
		m.StopBits = 1
	}
	if m.Parity == "" {
		m.Parity = "N"
	}
	if m.ResponseTimeout == 0 {
		m.ResponseTimeout = 3 * time.Second
	}
	if m.FirmwareResponseTimeout == 0 {
		m.FirmwareResponseTimeout = 100 * time.Millisecond
	}
}
