package keymap

import (
	"fmt"
	"strings"
)

// RuleNamesEnv overrides the default keymap, as "rules:model:layout:variant:options".
const RuleNamesEnv = "WAYKBD_XKB_RULE_NAMES"

// Descriptor identifies a keyboard layout by its rule names.
// Empty fields let the layout compiler pick its own defaults.
type Descriptor struct {
	Rules   string `mapstructure:"rules"`
	Model   string `mapstructure:"model"`
	Layout  string `mapstructure:"layout"`
	Variant string `mapstructure:"variant"`
	Options string `mapstructure:"options"`
}

// ParseRuleNames parses the five colon separated rule name fields.
func ParseRuleNames(s string) (Descriptor, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 5 {
		return Descriptor{}, fmt.Errorf("rule names %q: expected 5 colon separated fields, got %d", s, len(fields))
	}
	return Descriptor{
		Rules:   fields[0],
		Model:   fields[1],
		Layout:  fields[2],
		Variant: fields[3],
		Options: fields[4],
	}, nil
}

// RuleNames formats d the way ParseRuleNames reads it.
func (d Descriptor) RuleNames() string {
	return strings.Join([]string{d.Rules, d.Model, d.Layout, d.Variant, d.Options}, ":")
}

// IsZero reports whether every field is empty.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

func (d Descriptor) String() string {
	layout := d.Layout
	if layout == "" {
		layout = "(default)"
	}
	if d.Variant != "" {
		layout += "(" + d.Variant + ")"
	}
	return fmt.Sprintf("layout=%s model=%s rules=%s options=%s", layout, d.Model, d.Rules, d.Options)
}

// DescriptorFromEnv reads the rule names override value. A missing or
// malformed value logs a warning and yields the empty descriptor.
func DescriptorFromEnv(value string) Descriptor {
	if value == "" {
		log.Warn("no rule names override set, default keymap will be used", "env", RuleNamesEnv)
		return Descriptor{}
	}
	d, err := ParseRuleNames(value)
	if err != nil {
		log.Warn("cannot parse rule names override, default keymap will be used", "env", RuleNamesEnv, "err", err)
		return Descriptor{}
	}
	log.Info("using rule names override for default keymap", "env", RuleNamesEnv, "value", value)
	return d
}
