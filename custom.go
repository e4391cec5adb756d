package hxcaptcha

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fastjson"
)

// CustomTranslation overrides UI strings for one language. Every field
// except Language is optional; empty fields keep the widget's text.
type CustomTranslation struct {
	Language         string `json:"language" toml:"language"`
	BoxStart         string `json:"boxStart,omitempty" toml:"box_start"`
	BoxInProgress    string `json:"boxInProgress,omitempty" toml:"box_in_progress"`
	BoxCompleted     string `json:"boxCompleted,omitempty" toml:"box_completed"`
	EndPrivacyPolicy string `json:"endPrivacyPolicy,omitempty" toml:"end_privacy_policy"`
	AriaLabelStart   string `json:"ariaLabelStart,omitempty" toml:"aria_label_start"`
	AriaLabelRunning string `json:"ariaLabelRunning,omitempty" toml:"aria_label_running"`
	AriaLabelDone    string `json:"ariaLabelDone,omitempty" toml:"aria_label_done"`
	SrRunning        string `json:"srRunning,omitempty" toml:"sr_running"`
	SrDone           string `json:"srDone,omitempty" toml:"sr_done"`
	SrFailed         string `json:"srFailed,omitempty" toml:"sr_failed"`
	SrTrustcaptcha   string `json:"srTrustcaptcha,omitempty" toml:"sr_trustcaptcha"`
	SrPrivacy        string `json:"srPrivacy,omitempty" toml:"sr_privacy"`
}

// field resolves a JSON or TOML key to the matching string field.
func (t *CustomTranslation) field(key string) *string {
	switch key {
	case "language":
		return &t.Language
	case "boxStart", "box_start":
		return &t.BoxStart
	case "boxInProgress", "box_in_progress":
		return &t.BoxInProgress
	case "boxCompleted", "box_completed":
		return &t.BoxCompleted
	case "endPrivacyPolicy", "end_privacy_policy":
		return &t.EndPrivacyPolicy
	case "ariaLabelStart", "aria_label_start":
		return &t.AriaLabelStart
	case "ariaLabelRunning", "aria_label_running":
		return &t.AriaLabelRunning
	case "ariaLabelDone", "aria_label_done":
		return &t.AriaLabelDone
	case "srRunning", "sr_running":
		return &t.SrRunning
	case "srDone", "sr_done":
		return &t.SrDone
	case "srFailed", "sr_failed":
		return &t.SrFailed
	case "srTrustcaptcha", "sr_trustcaptcha":
		return &t.SrTrustcaptcha
	case "srPrivacy", "sr_privacy":
		return &t.SrPrivacy
	}
	return nil
}

// ThemeColors are color overrides for one theme variant.
type ThemeColors struct {
	BoxDefaultBackground    string `json:"boxDefaultBackground,omitempty" toml:"box_default_background"`
	BoxDefaultText          string `json:"boxDefaultText,omitempty" toml:"box_default_text"`
	BoxDefaultBorder        string `json:"boxDefaultBorder,omitempty" toml:"box_default_border"`
	BoxCheckboxBackground   string `json:"boxCheckboxBackground,omitempty" toml:"box_checkbox_background"`
	BoxCheckboxBorder       string `json:"boxCheckboxBorder,omitempty" toml:"box_checkbox_border"`
	BoxSuccessBackground    string `json:"boxSuccessBackground,omitempty" toml:"box_success_background"`
	BoxSuccessBorder        string `json:"boxSuccessBorder,omitempty" toml:"box_success_border"`
	InvisibleHintBackground string `json:"invisibleHintBackground,omitempty" toml:"invisible_hint_background"`
}

func (c *ThemeColors) field(key string) *string {
	switch key {
	case "boxDefaultBackground", "box_default_background":
		return &c.BoxDefaultBackground
	case "boxDefaultText", "box_default_text":
		return &c.BoxDefaultText
	case "boxDefaultBorder", "box_default_border":
		return &c.BoxDefaultBorder
	case "boxCheckboxBackground", "box_checkbox_background":
		return &c.BoxCheckboxBackground
	case "boxCheckboxBorder", "box_checkbox_border":
		return &c.BoxCheckboxBorder
	case "boxSuccessBackground", "box_success_background":
		return &c.BoxSuccessBackground
	case "boxSuccessBorder", "box_success_border":
		return &c.BoxSuccessBorder
	case "invisibleHintBackground", "invisible_hint_background":
		return &c.InvisibleHintBackground
	}
	return nil
}

// Rounding overrides corner radii (CSS lengths).
type Rounding struct {
	Box           string `json:"box,omitempty" toml:"box"`
	Checkbox      string `json:"checkbox,omitempty" toml:"checkbox"`
	InvisibleHint string `json:"invisibleHint,omitempty" toml:"invisible_hint"`
}

func (r *Rounding) field(key string) *string {
	switch key {
	case "box":
		return &r.Box
	case "checkbox":
		return &r.Checkbox
	case "invisibleHint", "invisible_hint":
		return &r.InvisibleHint
	}
	return nil
}

// DesignThemes holds per-variant color overrides.
type DesignThemes struct {
	Light *ThemeColors `json:"light,omitempty" toml:"light"`
	Dark  *ThemeColors `json:"dark,omitempty" toml:"dark"`
}

// CustomDesign is the license-gated visual override record.
type CustomDesign struct {
	Rounding *Rounding     `json:"rounding,omitempty" toml:"rounding"`
	Theme    *DesignThemes `json:"theme,omitempty" toml:"theme"`
}

// Translations is the customTranslations input: either a JSON string, as
// hosts storing configuration as text provide it, or a structured list.
// Both collapse to []CustomTranslation in Resolve.
type Translations struct {
	raw     string
	records []CustomTranslation
}

// TranslationsJSON wraps a JSON array string.
func TranslationsJSON(raw string) Translations {
	return Translations{raw: raw}
}

// TranslationList wraps structured records.
func TranslationList(records ...CustomTranslation) Translations {
	return Translations{records: records}
}

// IsZero reports whether no translations were supplied.
func (t Translations) IsZero() bool {
	return t.raw == "" && len(t.records) == 0
}

// Resolve returns the canonical structured form, parsing the JSON string
// form if needed.
func (t Translations) Resolve() ([]CustomTranslation, error) {
	if t.raw == "" {
		for i, rec := range t.records {
			if rec.Language == "" {
				return nil, fmt.Errorf("%w: customTranslations[%d]: missing language", ErrMalformedConfig, i)
			}
		}
		return t.records, nil
	}

	v, err := fastjson.Parse(t.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: customTranslations: %v", ErrMalformedConfig, err)
	}
	items, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("%w: customTranslations: expected a JSON array", ErrMalformedConfig)
	}
	out := make([]CustomTranslation, 0, len(items))
	for i, item := range items {
		obj, err := item.Object()
		if err != nil {
			return nil, fmt.Errorf("%w: customTranslations[%d]: expected an object", ErrMalformedConfig, i)
		}
		var rec CustomTranslation
		if err := visitStrings(obj, rec.field); err != nil {
			return nil, fmt.Errorf("%w: customTranslations[%d]: %v", ErrMalformedConfig, i, err)
		}
		if rec.Language == "" {
			return nil, fmt.Errorf("%w: customTranslations[%d]: missing language", ErrMalformedConfig, i)
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarshalJSON keeps the input form: a string stays a string.
func (t Translations) MarshalJSON() ([]byte, error) {
	if t.raw != "" {
		return json.Marshal(t.raw)
	}
	if t.records == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.records)
}

// UnmarshalJSON accepts a JSON string or an array of records.
func (t *Translations) UnmarshalJSON(data []byte) error {
	*t = Translations{}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.raw)
	}
	if string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &t.records)
}

// UnmarshalTOML accepts a string or an array of tables.
func (t *Translations) UnmarshalTOML(v any) error {
	*t = Translations{}
	switch val := v.(type) {
	case string:
		t.raw = val
	case []map[string]any:
		for _, m := range val {
			var rec CustomTranslation
			if err := assignStrings(m, rec.field); err != nil {
				return err
			}
			t.records = append(t.records, rec)
		}
	case []any:
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: custom_translations: expected tables", ErrMalformedConfig)
			}
			var rec CustomTranslation
			if err := assignStrings(m, rec.field); err != nil {
				return err
			}
			t.records = append(t.records, rec)
		}
	default:
		return fmt.Errorf("%w: custom_translations: unsupported type %T", ErrMalformedConfig, v)
	}
	return nil
}

// Design is the customDesign input: a JSON string or a structured value.
type Design struct {
	raw   string
	value *CustomDesign
}

// DesignJSON wraps a JSON object string.
func DesignJSON(raw string) Design {
	return Design{raw: raw}
}

// DesignOf wraps a structured design.
func DesignOf(d CustomDesign) Design {
	return Design{value: &d}
}

// IsZero reports whether no design was supplied.
func (d Design) IsZero() bool {
	return d.raw == "" && d.value == nil
}

// Resolve returns the canonical structured form. A zero Design resolves
// to nil.
func (d Design) Resolve() (*CustomDesign, error) {
	if d.raw == "" {
		return d.value, nil
	}

	v, err := fastjson.Parse(d.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: customDesign: %v", ErrMalformedConfig, err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("%w: customDesign: expected a JSON object", ErrMalformedConfig)
	}

	out := &CustomDesign{}
	var firstErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if firstErr != nil {
			return
		}
		switch string(key) {
		case "rounding":
			o, err := val.Object()
			if err != nil {
				firstErr = fmt.Errorf("rounding: expected an object")
				return
			}
			out.Rounding = &Rounding{}
			firstErr = visitStrings(o, out.Rounding.field)
		case "theme":
			o, err := val.Object()
			if err != nil {
				firstErr = fmt.Errorf("theme: expected an object")
				return
			}
			out.Theme = &DesignThemes{}
			firstErr = visitThemes(o, out.Theme)
		}
	})
	if firstErr != nil {
		return nil, fmt.Errorf("%w: customDesign: %v", ErrMalformedConfig, firstErr)
	}
	return out, nil
}

// MarshalJSON keeps the input form.
func (d Design) MarshalJSON() ([]byte, error) {
	if d.raw != "" {
		return json.Marshal(d.raw)
	}
	if d.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.value)
}

// UnmarshalJSON accepts a JSON string or an object.
func (d *Design) UnmarshalJSON(data []byte) error {
	*d = Design{}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &d.raw)
	}
	if string(data) == "null" {
		return nil
	}
	var v CustomDesign
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	d.value = &v
	return nil
}

// UnmarshalTOML accepts a string or a table.
func (d *Design) UnmarshalTOML(v any) error {
	*d = Design{}
	switch val := v.(type) {
	case string:
		d.raw = val
	case map[string]any:
		out := &CustomDesign{}
		if r, ok := val["rounding"].(map[string]any); ok {
			out.Rounding = &Rounding{}
			if err := assignStrings(r, out.Rounding.field); err != nil {
				return err
			}
		}
		if th, ok := val["theme"].(map[string]any); ok {
			out.Theme = &DesignThemes{}
			for variant, target := range map[string]**ThemeColors{"light": &out.Theme.Light, "dark": &out.Theme.Dark} {
				m, ok := th[variant].(map[string]any)
				if !ok {
					continue
				}
				*target = &ThemeColors{}
				if err := assignStrings(m, (*target).field); err != nil {
					return err
				}
			}
		}
		d.value = out
	default:
		return fmt.Errorf("%w: custom_design: unsupported type %T", ErrMalformedConfig, v)
	}
	return nil
}

func visitThemes(obj *fastjson.Object, out *DesignThemes) error {
	var firstErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if firstErr != nil {
			return
		}
		var target **ThemeColors
		switch string(key) {
		case "light":
			target = &out.Light
		case "dark":
			target = &out.Dark
		default:
			return
		}
		o, err := val.Object()
		if err != nil {
			firstErr = fmt.Errorf("theme.%s: expected an object", key)
			return
		}
		*target = &ThemeColors{}
		firstErr = visitStrings(o, (*target).field)
	})
	return firstErr
}

// visitStrings copies known string members of obj into the fields chosen
// by lookup. Unknown keys are ignored; known keys with non-string values
// are an error.
func visitStrings(obj *fastjson.Object, lookup func(string) *string) error {
	var firstErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if firstErr != nil {
			return
		}
		dst := lookup(string(key))
		if dst == nil {
			return
		}
		if val.Type() == fastjson.TypeNull {
			return
		}
		b, err := val.StringBytes()
		if err != nil {
			firstErr = fmt.Errorf("%s: expected a string", key)
			return
		}
		*dst = string(b)
	})
	return firstErr
}

func assignStrings(m map[string]any, lookup func(string) *string) error {
	for k, v := range m {
		dst := lookup(k)
		if dst == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %s: expected a string", ErrMalformedConfig, k)
		}
		*dst = s
	}
	return nil
}
