/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vidval/codec/codecutil"
	"github.com/ausocean/vidval/resource"
)

// Config map Keys.
const (
	KeyCoincide            = "Coincide"
	KeyDistinct            = "Distinct"
	KeyDPBLayers           = "DPBLayers"
	KeyInlineQueries       = "InlineQueries"
	KeyLogging             = "logging"
	KeyMaxActiveReferences = "MaxActiveReferences"
	KeyMaxCodedExtent      = "MaxCodedExtent"
	KeyMaxDPBSlots         = "MaxDPBSlots"
	KeyMaxQualityLevels    = "MaxQualityLevels"
	KeyOperation           = "Operation"
	KeyQuantizationMaps    = "QuantizationMaps"
	KeyRateControlModes    = "RateControlModes"
)

// Config map parameter types.
const (
	typeString = "string"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultVerbosity        = logging.Error
	defaultCodec            = codecutil.H264
	defaultCodedWidth       = 1920
	defaultCodedHeight      = 1088
	defaultRateControlModes = RateControlDefault
	defaultQualityLevels    = 1
)

var defaultOperation = codecutil.Operation{Direction: codecutil.Decode, Codec: defaultCodec}

var rateControlNames = map[string]RateControlMode{
	"default":  RateControlDefault,
	"disabled": RateControlDisabled,
	"cbr":      RateControlCBR,
	"vbr":      RateControlVBR,
}

// Variables describes the variables that can be used for session
// configuration. These structs provide the name and type of variable, a
// function for updating this variable in a Config, and a function for
// validating the value of the variable. Validation runs in table order, so
// later entries may rely on earlier ones having been defaulted.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name: KeyOperation,
		Type: "enum:decode_h264,decode_h265,decode_av1,decode_vp9,encode_h264,encode_h265,encode_av1",
		Update: func(c *Config, v string) {
			op, err := codecutil.ParseOperation(v)
			if err != nil {
				c.Logger.Warning("invalid Operation param", "value", v, "error", err.Error())
				return
			}
			c.Operation = op
		},
		Validate: func(c *Config) {
			if !c.Operation.IsValid() {
				c.LogInvalidField(KeyOperation, defaultOperation)
				c.Operation = defaultOperation
			}
		},
	},
	{
		Name:   KeyMaxDPBSlots,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MaxDPBSlots = parseUint32(KeyMaxDPBSlots, v, c) },
		Validate: func(c *Config) {
			max := c.Operation.Capability().MaxDPBSlots()
			c.MaxDPBSlots = greaterThan(KeyMaxDPBSlots, c.MaxDPBSlots, max, c, max)
		},
	},
	{
		Name:   KeyMaxActiveReferences,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MaxActiveReferences = parseUint32(KeyMaxActiveReferences, v, c) },
		Validate: func(c *Config) {
			max := c.Operation.Capability().MaxActiveReferences()
			if c.MaxDPBSlots < max {
				max = c.MaxDPBSlots
			}
			c.MaxActiveReferences = greaterThan(KeyMaxActiveReferences, c.MaxActiveReferences, max, c, max)
		},
	},
	{
		Name: KeyMaxCodedExtent,
		Type: typeString,
		Update: func(c *Config, v string) {
			ext, err := ParseExtent(v)
			if err != nil {
				c.Logger.Warning("invalid MaxCodedExtent param", "value", v, "error", err.Error())
				return
			}
			c.MaxCodedExtent = ext
		},
		Validate: func(c *Config) {
			if c.MaxCodedExtent.IsZero() {
				def := resource.Extent2D{Width: defaultCodedWidth, Height: defaultCodedHeight}
				c.LogInvalidField(KeyMaxCodedExtent, def)
				c.MaxCodedExtent = def
			}
		},
	},
	{
		Name:   KeyDPBLayers,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.DPBLayers = parseUint32(KeyDPBLayers, v, c) },
		Validate: func(c *Config) {
			if c.DPBLayers == 0 {
				def := c.MaxDPBSlots
				if def == 0 {
					def = 1
				}
				c.LogInvalidField(KeyDPBLayers, def)
				c.DPBLayers = def
			}
		},
	},
	{
		Name:   KeyCoincide,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Coincide = parseBool(KeyCoincide, v, c) },
	},
	{
		Name:   KeyDistinct,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Distinct = parseBool(KeyDistinct, v, c) },
		Validate: func(c *Config) {
			if c.IsDecode() && !c.Coincide && !c.Distinct {
				c.LogInvalidField(KeyCoincide, true)
				c.Coincide = true
			}
		},
	},
	{
		Name:   KeyQuantizationMaps,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.QuantizationMaps = parseBool(KeyQuantizationMaps, v, c) },
		Validate: func(c *Config) {
			if c.IsDecode() && c.QuantizationMaps {
				c.Logger.Warning("quantization maps are encode only, disabling")
				c.QuantizationMaps = false
			}
		},
	},
	{
		Name:   KeyInlineQueries,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.InlineQueries = parseBool(KeyInlineQueries, v, c) },
	},
	{
		Name: KeyRateControlModes,
		Type: "enums:default,disabled,cbr,vbr",
		Update: func(c *Config, v string) {
			var modes RateControlMode
			for _, s := range strings.Split(v, ",") {
				m, ok := rateControlNames[strings.ToLower(strings.TrimSpace(s))]
				if !ok {
					c.Logger.Warning("invalid RateControlModes param", "value", s)
					continue
				}
				modes |= m
			}
			c.RateControlModes = modes
		},
		Validate: func(c *Config) {
			switch {
			case c.IsDecode():
				c.RateControlModes = 0
			case c.RateControlModes == 0:
				c.LogInvalidField(KeyRateControlModes, defaultRateControlModes)
				c.RateControlModes = defaultRateControlModes
			}
		},
	},
	{
		Name:   KeyMaxQualityLevels,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MaxQualityLevels = parseUint32(KeyMaxQualityLevels, v, c) },
		Validate: func(c *Config) {
			switch {
			case c.IsDecode():
				c.MaxQualityLevels = 0
			case c.MaxQualityLevels == 0:
				c.LogInvalidField(KeyMaxQualityLevels, defaultQualityLevels)
				c.MaxQualityLevels = defaultQualityLevels
			}
		},
	},
}

func parseUint32(n, v string, c *Config) uint32 {
	_v, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint32(_v)
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

// ParseRateControlMode parses the name of a single rate control mode.
func ParseRateControlMode(s string) (RateControlMode, error) {
	m, ok := rateControlNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown rate control mode %q", s)
	}
	return m, nil
}

// ParseExtent parses extents of the form "1920x1080".
func ParseExtent(v string) (resource.Extent2D, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(v)), "x")
	if !ok {
		return resource.Extent2D{}, fmt.Errorf("extent %q not of form WxH", v)
	}
	width, err := strconv.ParseUint(w, 10, 32)
	if err != nil {
		return resource.Extent2D{}, fmt.Errorf("bad width: %w", err)
	}
	height, err := strconv.ParseUint(h, 10, 32)
	if err != nil {
		return resource.Extent2D{}, fmt.Errorf("bad height: %w", err)
	}
	return resource.Extent2D{Width: uint32(width), Height: uint32(height)}, nil
}

func greaterThan(n string, v, cmp uint32, c *Config, def uint32) uint32 {
	if v > cmp {
		c.LogInvalidField(n, def)
		return def
	}
	return v
}
