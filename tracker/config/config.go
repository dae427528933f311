/*
NAME
  config.go

DESCRIPTION
  config.go contains the session configuration: the immutable snapshot of
  limits and capabilities a coding session is created with.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for a coding session.
package config

import (
	"errors"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vidval/codec/codecutil"
	"github.com/ausocean/vidval/resource"
)

// RateControlMode is a set of encode rate control modes.
type RateControlMode uint8

// Rate control modes. RateControlDefault is the implementation defined
// behaviour used when a session has not been given an explicit mode.
const (
	RateControlDefault RateControlMode = 1 << iota
	RateControlDisabled
	RateControlCBR
	RateControlVBR
)

// Has reports whether m includes every mode in o.
func (m RateControlMode) Has(o RateControlMode) bool { return m&o == o }

func (m RateControlMode) String() string {
	var s string
	for _, v := range []struct {
		m    RateControlMode
		name string
	}{
		{RateControlDefault, "default"},
		{RateControlDisabled, "disabled"},
		{RateControlCBR, "cbr"},
		{RateControlVBR, "vbr"},
	} {
		if m&v.m == 0 {
			continue
		}
		if s != "" {
			s += ","
		}
		s += v.name
	}
	return s
}

// Config provides the parameters of a coding session. It is validated and
// copied when the session is created and never changes afterwards.
type Config struct {
	// Logger holds an implementation of the Logger interface.
	// This must be set for the tracker to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	// Operation is the direction and codec of every operation recorded
	// against the session.
	Operation codecutil.Operation

	MaxDPBSlots         uint32 // Number of DPB slots; 0 means the session has no DPB.
	MaxActiveReferences uint32 // Largest number of references one operation may use.

	// MaxCodedExtent bounds the coded offset and extent of every picture
	// resource used with the session.
	MaxCodedExtent resource.Extent2D

	// DPBLayers is the number of array layers available to DPB pictures. A
	// picture's layer range must lie within [0, DPBLayers).
	DPBLayers uint32

	// Coincide and Distinct describe the decode output modes the session
	// supports. In coincide mode the decode output is the reconstructed
	// picture; in distinct mode it must be a different resource. They are
	// ignored for encode sessions.
	Coincide bool
	Distinct bool

	QuantizationMaps bool // Encode only; whether operations may carry a quantization map.
	InlineQueries    bool // Whether operations may carry an inline query.

	// RateControlModes are the rate control modes a Control may select.
	// Encode only.
	RateControlModes RateControlMode

	// MaxQualityLevels bounds the quality level a Control may select.
	// Encode only.
	MaxQualityLevels uint32
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("config has no logger")
	}
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// IsDecode reports whether the session decodes.
func (c *Config) IsDecode() bool { return c.Operation.Direction == codecutil.Decode }

// IsEncode reports whether the session encodes.
func (c *Config) IsEncode() bool { return c.Operation.Direction == codecutil.Encode }

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
