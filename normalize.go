package hxcaptcha

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Widget attribute names, as read by <trustcaptcha-component>.
const (
	AttrSitekey            = "sitekey"
	AttrWidth              = "width"
	AttrLanguage           = "language"
	AttrTheme              = "theme"
	AttrAutostart          = "autostart"
	AttrLicense            = "license"
	AttrHideBranding       = "hide-branding"
	AttrInvisible          = "invisible"
	AttrInvisibleHint      = "invisible-hint"
	AttrBypassToken        = "bypass-token"
	AttrMode               = "mode"
	AttrTokenFieldName     = "token-field-name"
	AttrCustomTranslations = "custom-translations"
	AttrCustomDesign       = "custom-design"
	AttrPrivacyURL         = "privacy-url"
)

// Attributes that bind the widget to an account. A change to any of them
// forces a remount.
var identityAttrs = map[string]struct{}{
	AttrSitekey: {},
	AttrMode:    {},
	AttrLicense: {},
}

// Attributes the runtime can apply to a live widget.
var cosmeticAttrs = map[string]struct{}{
	AttrTheme:              {},
	AttrLanguage:           {},
	AttrWidth:              {},
	AttrInvisibleHint:      {},
	AttrCustomDesign:       {},
	AttrCustomTranslations: {},
}

// Attributes stripped when no license is set.
var licensedAttrs = []string{
	AttrHideBranding,
	AttrInvisible,
	AttrInvisibleHint,
	AttrCustomDesign,
	AttrPrivacyURL,
}

// Attributes is the flat attribute set applied to a widget instance.
// Application order does not matter.
type Attributes map[string]string

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of a.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Diff returns the sorted names of attributes that differ between a and
// other, including ones present on only one side.
func (a Attributes) Diff(other Attributes) []string {
	var changed []string
	for k, v := range a {
		if ov, ok := other[k]; !ok || ov != v {
			changed = append(changed, k)
		}
	}
	for k := range other {
		if _, ok := a[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// IdentityChanged reports whether sitekey, mode or license differ.
func (a Attributes) IdentityChanged(other Attributes) bool {
	for k := range identityAttrs {
		if a[k] != other[k] {
			return true
		}
	}
	return false
}

// CosmeticOnly reports whether every changed attribute can be applied to a
// live widget.
func CosmeticOnly(changed []string) bool {
	for _, k := range changed {
		if _, ok := cosmeticAttrs[k]; !ok {
			return false
		}
	}
	return true
}

// Normalized is the canonical form of a Config.
type Normalized struct {
	Attrs          Attributes
	Translations   []CustomTranslation
	Design         *CustomDesign
	TokenFieldName string

	// Gated lists license-gated options that were set but dropped because
	// no license was given.
	Gated []string
}

// Normalize validates cfg and maps it onto the widget attribute surface.
//
// A missing sitekey fails with NO_SITE_KEY_SPECIFIED. Malformed custom
// JSON or out-of-range enum values fail with UNKNOWN_ERROR wrapping
// ErrMalformedConfig; such input never reaches the widget runtime.
func Normalize(cfg Config) (Normalized, error) {
	cfg = cfg.WithDefaults()

	sitekey := strings.TrimSpace(cfg.Sitekey)
	if sitekey == "" {
		return Normalized{}, wrapCaptchaError(ErrorNoSiteKeySpecified, ErrMissingSitekey, "no sitekey specified")
	}
	if !cfg.Width.valid() {
		return Normalized{}, malformed("width %q", cfg.Width)
	}
	if !cfg.Theme.valid() {
		return Normalized{}, malformed("theme %q", cfg.Theme)
	}
	if !cfg.Mode.valid() {
		return Normalized{}, malformed("mode %q", cfg.Mode)
	}
	if !cfg.InvisibleHint.valid() {
		return Normalized{}, malformed("invisibleHint %q", cfg.InvisibleHint)
	}

	translations, err := cfg.CustomTranslations.Resolve()
	if err != nil {
		return Normalized{}, wrapCaptchaError(ErrorUnknown, err, "%s", err.Error())
	}
	design, err := cfg.CustomDesign.Resolve()
	if err != nil {
		return Normalized{}, wrapCaptchaError(ErrorUnknown, err, "%s", err.Error())
	}
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	if !languageKnown(cfg.Language, translations) {
		return Normalized{}, malformed("language %q", cfg.Language)
	}

	attrs := Attributes{
		AttrSitekey:        sitekey,
		AttrWidth:          string(cfg.Width),
		AttrLanguage:       cfg.Language,
		AttrTheme:          string(cfg.Theme),
		AttrAutostart:      strconv.FormatBool(*cfg.Autostart),
		AttrMode:           string(cfg.Mode),
		AttrTokenFieldName: cfg.TokenFieldName,
	}
	if cfg.BypassToken != "" {
		attrs[AttrBypassToken] = cfg.BypassToken
	}
	if len(translations) > 0 {
		b, err := json.Marshal(translations)
		if err != nil {
			return Normalized{}, wrapCaptchaError(ErrorUnknown, err, "encode customTranslations: %v", err)
		}
		attrs[AttrCustomTranslations] = string(b)
	}

	licensed := Attributes{}
	if cfg.HideBranding {
		licensed[AttrHideBranding] = "true"
	}
	if cfg.Invisible {
		licensed[AttrInvisible] = "true"
		licensed[AttrInvisibleHint] = string(cfg.InvisibleHint)
	}
	if design != nil {
		b, err := json.Marshal(design)
		if err != nil {
			return Normalized{}, wrapCaptchaError(ErrorUnknown, err, "encode customDesign: %v", err)
		}
		licensed[AttrCustomDesign] = string(b)
	}
	if cfg.PrivacyURL != "" {
		licensed[AttrPrivacyURL] = cfg.PrivacyURL
	}

	n := Normalized{
		Attrs:          attrs,
		Translations:   translations,
		TokenFieldName: cfg.TokenFieldName,
	}

	license := strings.TrimSpace(cfg.License)
	if license == "" {
		for _, k := range licensedAttrs {
			if _, ok := licensed[k]; ok {
				n.Gated = append(n.Gated, k)
			}
		}
		if len(n.Gated) > 0 {
			Logger().Warn("license-gated options ignored without a license",
				zap.String("sitekey", sitekey),
				zap.Strings("options", n.Gated),
			)
		}
		return n, nil
	}

	attrs[AttrLicense] = license
	for k, v := range licensed {
		attrs[k] = v
	}
	n.Design = design
	return n, nil
}

func malformed(format string, args ...any) *CaptchaError {
	msg := "invalid " + fmt.Sprintf(format, args...)
	return wrapCaptchaError(ErrorUnknown, ErrMalformedConfig, "%s", msg)
}

// languageKnown reports whether the widget can display lang: "auto", a
// built-in language, or one supplied through custom translations. lang is
// already lowercased.
func languageKnown(lang string, translations []CustomTranslation) bool {
	if lang == LanguageAuto {
		return true
	}
	if _, ok := builtinLanguages[lang]; ok {
		return true
	}
	for _, t := range translations {
		if strings.EqualFold(t.Language, lang) {
			return true
		}
	}
	return false
}
