package hxcaptcha

import (
	"strings"

	"github.com/valyala/fastjson"
)

// nativeErrorCodes maps error codes reported by the widget runtime onto the
// closed set. Keys are normalized by canonicalCode. Every ErrorCode maps to
// itself; the rest are spellings seen across runtime versions.
var nativeErrorCodes = map[string]ErrorCode{
	"UNKNOWN_ERROR":          ErrorUnknown,
	"NO_FORM_FOUND":          ErrorNoFormFound,
	"FORM_NOT_FOUND":         ErrorNoFormFound,
	"COMMUNICATION_FAILURE":  ErrorCommunicationFailure,
	"COMMUNICATION_ERROR":    ErrorCommunicationFailure,
	"NETWORK_ERROR":          ErrorCommunicationFailure,
	"NO_SITE_KEY_SPECIFIED":  ErrorNoSiteKeySpecified,
	"NO_SITEKEY_SPECIFIED":   ErrorNoSiteKeySpecified,
	"SITE_KEY_MISSING":       ErrorNoSiteKeySpecified,
	"UNAUTHORIZED":           ErrorUnauthorized,
	"FORBIDDEN":              ErrorUnauthorized,
	"SITE_KEY_NOT_VALID":     ErrorSiteKeyNotValid,
	"SITE_KEY_INVALID":       ErrorSiteKeyNotValid,
	"SITEKEY_INVALID":        ErrorSiteKeyNotValid,
	"INVALID_SITE_KEY":       ErrorSiteKeyNotValid,
	"MODES_NOT_MATCHING":     ErrorModesNotMatching,
	"MODE_MISMATCH":          ErrorModesNotMatching,
	"CAPTCHA_NOT_ACCESSIBLE": ErrorCaptchaNotAccessible,
	"NOT_ACCESSIBLE":         ErrorCaptchaNotAccessible,
	"SCRIPT_LOAD_FAILED":     ErrorCaptchaNotAccessible,
	"POW_FAILURE":            ErrorPowFailure,
	"POW_FAILED":             ErrorPowFailure,
	"PAYMENT_REQUIRED":       ErrorPaymentRequired,
	"QUOTA_EXCEEDED":         ErrorPaymentRequired,
	"LOCKED":                 ErrorLocked,
	"ACCOUNT_LOCKED":         ErrorLocked,
	"LICENSE_INVALID":        ErrorLicenseInvalid,
	"LICENSE_NOT_VALID":      ErrorLicenseInvalid,
	"INVALID_LICENSE":        ErrorLicenseInvalid,
	"OPTION_NOT_AVAILABLE":   ErrorOptionNotAvailable,
}

// MapNativeErrorCode maps one native code string. Unrecognized codes yield
// ErrorUnknown.
func MapNativeErrorCode(code string) ErrorCode {
	if mapped, ok := nativeErrorCodes[canonicalCode(code)]; ok {
		return mapped
	}
	return ErrorUnknown
}

// MapNativeError converts a native failure payload into a CaptchaError.
//
// Accepted payloads: a code string, raw JSON bytes, a map with
// errorCode/code/error and message keys, a CaptchaError, or nil. The result
// always carries a code from the closed set; an unrecognized code keeps
// the runtime's message but never its code.
func MapNativeError(payload any) CaptchaError {
	switch p := payload.(type) {
	case nil:
		return CaptchaError{Code: ErrorUnknown, Message: "unknown error"}
	case CaptchaError:
		return CaptchaError{Code: MapNativeErrorCode(string(p.Code)), Message: p.Message}
	case *CaptchaError:
		if p == nil {
			return MapNativeError(nil)
		}
		return MapNativeError(*p)
	case []byte:
		return mapNativeJSON(p)
	case string:
		s := strings.TrimSpace(p)
		if strings.HasPrefix(s, "{") || strings.HasPrefix(s, `"`) {
			return mapNativeJSON([]byte(s))
		}
		return CaptchaError{Code: MapNativeErrorCode(s), Message: s}
	case map[string]any:
		code, _ := firstString(p, "errorCode", "code", "error")
		msg, _ := firstString(p, "message", "msg")
		return nativeError(code, msg)
	case map[string]string:
		code := p["errorCode"]
		if code == "" {
			code = p["code"]
		}
		if code == "" {
			code = p["error"]
		}
		msg := p["message"]
		return nativeError(code, msg)
	}
	return CaptchaError{Code: ErrorUnknown, Message: "unrecognized failure payload"}
}

func nativeError(code, msg string) CaptchaError {
	mapped := MapNativeErrorCode(code)
	if msg == "" {
		if code == "" {
			msg = "unknown error"
		} else {
			msg = code
		}
	}
	return CaptchaError{Code: mapped, Message: msg}
}

func mapNativeJSON(data []byte) CaptchaError {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return CaptchaError{Code: ErrorUnknown, Message: "malformed failure payload"}
	}
	switch v.Type() {
	case fastjson.TypeString:
		return MapNativeError(string(v.GetStringBytes()))
	case fastjson.TypeObject:
		var code, msg string
		for _, key := range []string{"errorCode", "code", "error"} {
			if b := v.GetStringBytes(key); b != nil {
				code = string(b)
				break
			}
		}
		if b := v.GetStringBytes("message"); b != nil {
			msg = string(b)
		}
		return nativeError(code, msg)
	case fastjson.TypeNull:
		return MapNativeError(nil)
	}
	return CaptchaError{Code: ErrorUnknown, Message: "unrecognized failure payload"}
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func canonicalCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ToUpper(code)
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(code)
}
