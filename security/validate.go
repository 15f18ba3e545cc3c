package security

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FieldType selects a type-specific check.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeEmail    FieldType = "email"
	TypePassword FieldType = "password"
	TypeUsername FieldType = "username"
	TypeURL      FieldType = "url"
	TypeUUID     FieldType = "uuid"
)

// Rule constrains one body field.
type Rule struct {
	Field     string
	Required  bool
	Type      FieldType
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	// Sanitize HTML-escapes the value and strips injection fragments after it
	// passes validation.
	Sanitize bool
}

// Rules is an ordered rule set; errors are reported in rule order.
type Rules []Rule

// ValidationErrors lists one message per failing field.
type ValidationErrors []string

func (e ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(e, "; ")
}

// Validate checks body against rules. On success it returns a copy of body
// with sanitized values merged in; otherwise it returns ValidationErrors.
func Validate(body map[string]any, rules Rules) (map[string]any, error) {
	var errs ValidationErrors
	sanitized := make(map[string]any, len(rules))

	for _, r := range rules {
		value, present := body[r.Field]
		out, msg := r.check(value)
		if msg != "" {
			errs = append(errs, msg)
			continue
		}
		if present {
			sanitized[r.Field] = out
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	merged := make(map[string]any, len(body))
	for k, v := range body {
		merged[k] = v
	}
	for k, v := range sanitized {
		merged[k] = v
	}
	return merged, nil
}

func (r Rule) check(value any) (any, string) {
	if isEmpty(value) {
		if r.Required {
			return nil, r.Field + " is required"
		}
		return value, ""
	}

	str, isString := value.(string)
	if !isString {
		str = fmt.Sprint(value)
	}
	n := utf8.RuneCountInString(str)

	if r.MinLength > 0 && n < r.MinLength {
		return nil, fmt.Sprintf("%s must be at least %d characters", r.Field, r.MinLength)
	}
	if r.MaxLength > 0 && n > r.MaxLength {
		return nil, fmt.Sprintf("%s must not exceed %d characters", r.Field, r.MaxLength)
	}

	switch r.Type {
	case TypeEmail:
		if !IsEmail(str) {
			return nil, r.Field + " must be a valid email address"
		}
	case TypePassword:
		if !IsStrongPassword(str) {
			return nil, r.Field + " must be at least 8 characters with uppercase, lowercase, number, and special character"
		}
	case TypeUsername:
		if !IsUsername(str) {
			return nil, r.Field + " must be 3-20 characters, alphanumeric and underscore only"
		}
	case TypeURL:
		if !IsURL(str) {
			return nil, r.Field + " must be a valid URL"
		}
	case TypeUUID:
		if !IsUUID(str) {
			return nil, r.Field + " must be a valid UUID"
		}
	}

	if r.Pattern != nil && !r.Pattern.MatchString(str) {
		return nil, r.Field + " format is invalid"
	}

	if r.Sanitize && isString {
		return SanitizeField(str), ""
	}
	return value, ""
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// IsUsername reports whether s is 3-20 ASCII letters, digits or underscores.
func IsUsername(s string) bool {
	return usernameRe.MatchString(s)
}

const passwordSpecials = "@$!%*?&"

// IsStrongPassword reports whether s has at least 8 characters drawn from
// letters, digits and @$!%*?&, including at least one of each class.
func IsStrongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var lower, upper, digit, special bool
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, c):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// IsEmail reports whether s is a bare addr-spec with a dotted domain.
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// IsURL reports whether s is an http(s) or ftp URL with a dotted host. A
// missing scheme is accepted.
func IsURL(s string) bool {
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	candidate := s
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
	default:
		return false
	}
	host := u.Hostname()
	return strings.Contains(host, ".") && !strings.HasPrefix(host, ".") && !strings.HasSuffix(host, ".")
}

// IsUUID reports whether s is a canonical hyphenated UUID.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

var (
	fieldAngle       = regexp.MustCompile(`[<>]`)
	fieldJSProto     = regexp.MustCompile(`(?i)javascript:`)
	fieldVBProto     = regexp.MustCompile(`(?i)vbscript:`)
	fieldHandler     = regexp.MustCompile(`(?i)on\w+\s*=`)
	fieldDataURI     = regexp.MustCompile(`(?i)data:(image/)?`)
	fieldBlockCmt    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	fieldLineCmt     = regexp.MustCompile(`(?m)--.*$`)
	fieldStackedStmt = regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|create|alter|truncate)`)
)

// SanitizeField HTML-escapes s and strips protocol, handler, data-URI
// (except images), comment and stacked-statement fragments.
func SanitizeField(s string) string {
	s = htmlEscaper.Replace(s)
	s = fieldAngle.ReplaceAllString(s, "")
	s = fieldJSProto.ReplaceAllString(s, "")
	s = fieldVBProto.ReplaceAllString(s, "")
	s = fieldHandler.ReplaceAllString(s, "")
	s = fieldDataURI.ReplaceAllStringFunc(s, func(m string) string {
		if len(m) > len("data:") {
			return m
		}
		return ""
	})
	s = fieldBlockCmt.ReplaceAllString(s, "")
	s = fieldLineCmt.ReplaceAllString(s, "")
	s = fieldStackedStmt.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
