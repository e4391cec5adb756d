package hxcaptcha

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultTokenFieldName names the hidden form field when Config leaves
// TokenFieldName empty.
const DefaultTokenFieldName = "tc-verification-token"

// Width is the layout mode of the widget box.
type Width string

const (
	WidthFixed Width = "fixed"
	WidthFull  Width = "full"
)

// Theme selects the widget color scheme. ThemeMedia follows the
// prefers-color-scheme media query.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeMedia Theme = "media"
)

// InvisibleHint controls where the small notice is shown while the widget
// runs invisibly.
type InvisibleHint string

const (
	HintInline      InvisibleHint = "inline"
	HintRightBorder InvisibleHint = "right-border"
	HintRightBottom InvisibleHint = "right-bottom"
	HintHidden      InvisibleHint = "hidden"
)

// Mode is the data mode of the CAPTCHA. It must match the mode configured
// for the sitekey or verification fails with MODES_NOT_MATCHING.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeMinimal  Mode = "minimal"
)

// LanguageAuto lets the widget pick the language from the browser.
const LanguageAuto = "auto"

var builtinLanguages = map[string]struct{}{
	"ar": {}, "be": {}, "bg": {}, "bs": {}, "ca": {}, "cs": {}, "da": {}, "de": {},
	"el": {}, "en": {}, "es": {}, "et": {}, "fi": {}, "fr": {}, "hi": {}, "hr": {},
	"hu": {}, "it": {}, "ko": {}, "lb": {}, "lt": {}, "lv": {}, "mk": {}, "nl": {},
	"no": {}, "pl": {}, "pt": {}, "ro": {}, "ru": {}, "sk": {}, "sl": {}, "sq": {},
	"sr": {}, "sv": {}, "tr": {}, "uk": {}, "zh": {},
}

// Config is the declarative widget configuration supplied by the host on
// every render.
//
// Only Sitekey is required. HideBranding, Invisible, InvisibleHint,
// CustomDesign and PrivacyURL take effect only with a non-empty License;
// without one they are dropped during normalization.
type Config struct {
	Sitekey            string        `json:"sitekey" toml:"sitekey"`
	Width              Width         `json:"width,omitempty" toml:"width"`
	// Language is "auto" or a two-letter code, matched case-insensitively.
	// Only languages the widget ships and those supplied through
	// CustomTranslations are accepted; any other code is rejected as
	// UNKNOWN_ERROR.
	Language           string        `json:"language,omitempty" toml:"language"`
	Theme              Theme         `json:"theme,omitempty" toml:"theme"`
	Autostart          *bool         `json:"autostart,omitempty" toml:"autostart"`
	License            string        `json:"license,omitempty" toml:"license"`
	HideBranding       bool          `json:"hideBranding,omitempty" toml:"hide_branding"`
	Invisible          bool          `json:"invisible,omitempty" toml:"invisible"`
	InvisibleHint      InvisibleHint `json:"invisibleHint,omitempty" toml:"invisible_hint"`
	BypassToken        string        `json:"bypassToken,omitempty" toml:"bypass_token"`
	Mode               Mode          `json:"mode,omitempty" toml:"mode"`
	TokenFieldName     string        `json:"tokenFieldName,omitempty" toml:"token_field_name"`
	CustomTranslations Translations  `json:"customTranslations,omitempty" toml:"custom_translations"`
	CustomDesign       Design        `json:"customDesign,omitempty" toml:"custom_design"`
	PrivacyURL         string        `json:"privacyUrl,omitempty" toml:"privacy_url"`

	// Class is added to the wrapper element around the widget.
	Class string `json:"class,omitempty" toml:"class"`
}

// Bool returns a pointer to b, for Config.Autostart.
func Bool(b bool) *bool {
	return &b
}

// WithDefaults returns a copy of c with empty fields set to the widget
// defaults.
func (c Config) WithDefaults() Config {
	if c.Width == "" {
		c.Width = WidthFixed
	}
	if c.Language == "" {
		c.Language = LanguageAuto
	}
	if c.Theme == "" {
		c.Theme = ThemeLight
	}
	if c.Autostart == nil {
		c.Autostart = Bool(true)
	}
	if c.InvisibleHint == "" {
		c.InvisibleHint = HintRightBorder
	}
	if c.Mode == "" {
		c.Mode = ModeStandard
	}
	if c.TokenFieldName == "" {
		c.TokenFieldName = DefaultTokenFieldName
	}
	return c
}

// LoadConfig reads a widget configuration from a TOML file.
//
// custom_translations and custom_design may be given either as a JSON
// string or as TOML tables.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// ParseConfigJSON decodes a widget configuration from JSON using the
// widget's camelCase property names.
func ParseConfigJSON(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	return cfg, nil
}

func (w Width) valid() bool {
	return w == WidthFixed || w == WidthFull
}

func (t Theme) valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeMedia
}

func (h InvisibleHint) valid() bool {
	switch h {
	case HintInline, HintRightBorder, HintRightBottom, HintHidden:
		return true
	}
	return false
}

func (m Mode) valid() bool {
	return m == ModeStandard || m == ModeMinimal
}
