package security

import (
	"fmt"
	"regexp"
	"sort"
)

type signature struct {
	name string
	re   *regexp.Regexp
}

var signatures = []signature{
	// SQL injection
	{"sql_union_select", regexp.MustCompile(`(?i)union\s+select`)},
	{"sql_drop_table", regexp.MustCompile(`(?i)drop\s+table`)},
	{"sql_insert_into", regexp.MustCompile(`(?i)insert\s+into`)},
	{"sql_delete_from", regexp.MustCompile(`(?i)delete\s+from`)},
	{"sql_update_set", regexp.MustCompile(`(?i)update\s+set`)},
	{"sql_or_tautology", regexp.MustCompile(`(?i)or\s+1\s*=\s*1`)},
	{"sql_quoted_tautology", regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`)},
	{"sql_tautology_comment", regexp.MustCompile(`(?i)'\s*or\s*1\s*=\s*1\s*--`)},
	{"sql_stacked_drop", regexp.MustCompile(`(?i)'\s*;\s*drop`)},
	{"sql_stacked_delete", regexp.MustCompile(`(?i)'\s*;\s*delete`)},
	{"sql_stacked_insert", regexp.MustCompile(`(?i)'\s*;\s*insert`)},
	{"sql_stacked_update", regexp.MustCompile(`(?i)'\s*;\s*update`)},
	{"sql_block_comment", regexp.MustCompile(`/\*.*\*/`)},
	{"sql_trailing_comment", regexp.MustCompile(`--\s*$`)},
	{"sql_concat", regexp.MustCompile(`'\s*\|\|\s*'`)},

	// XSS
	{"xss_script_open", regexp.MustCompile(`(?i)<script`)},
	{"xss_script_close", regexp.MustCompile(`(?i)</script>`)},
	{"xss_javascript_uri", regexp.MustCompile(`(?i)javascript:`)},
	{"xss_eval", regexp.MustCompile(`(?i)eval\(`)},
	{"xss_function", regexp.MustCompile(`(?i)function\(`)},
	{"xss_onclick", regexp.MustCompile(`(?i)onclick\s*=`)},
	{"xss_onload", regexp.MustCompile(`(?i)onload\s*=`)},
	{"xss_onerror", regexp.MustCompile(`(?i)onerror\s*=`)},
	{"xss_onmouseover", regexp.MustCompile(`(?i)onmouseover\s*=`)},
	{"xss_iframe", regexp.MustCompile(`(?i)<iframe`)},
	{"xss_object", regexp.MustCompile(`(?i)<object`)},
	{"xss_embed", regexp.MustCompile(`(?i)<embed`)},
	{"xss_vbscript_uri", regexp.MustCompile(`(?i)vbscript:`)},
	{"xss_data_html", regexp.MustCompile(`(?i)data:text/html`)},

	// Command injection
	{"cmd_cat", regexp.MustCompile(`(?i);\s*cat\s+`)},
	{"cmd_ls", regexp.MustCompile(`(?i);\s*ls\s+`)},
	{"cmd_pwd", regexp.MustCompile(`(?i);\s*pwd`)},
	{"cmd_whoami", regexp.MustCompile(`(?i);\s*whoami`)},
	{"cmd_pipe_nc", regexp.MustCompile(`(?i)\|\s*nc\s+`)},
	{"cmd_pipe_netcat", regexp.MustCompile(`(?i)\|\s*netcat\s+`)},
	{"cmd_and_cat", regexp.MustCompile(`(?i)&&\s*cat\s+`)},
	{"cmd_backticks", regexp.MustCompile("`.*`")},
	{"cmd_subshell", regexp.MustCompile(`\$\(.*\)`)},
}

// Match describes the first signature that fired.
type Match struct {
	// Pattern is a stable signature name, e.g. "sql_quoted_tautology".
	Pattern string
	// Location is a path into the inspected value, e.g. "body.user.email",
	// "query.q[0]" or "url".
	Location string
}

// DetectString reports the first signature matching s.
func DetectString(s string) (pattern string, ok bool) {
	for _, sig := range signatures {
		if sig.re.MatchString(s) {
			return sig.name, true
		}
	}
	return "", false
}

// DetectValue walks a decoded JSON value (maps, slices and strings) and
// reports the first string leaf matching a signature. Map keys are visited in
// sorted order so the reported location is deterministic.
func DetectValue(location string, v any) (Match, bool) {
	switch val := v.(type) {
	case string:
		if name, ok := DetectString(val); ok {
			return Match{Pattern: name, Location: location}, true
		}
	case []string:
		for i, s := range val {
			if name, ok := DetectString(s); ok {
				return Match{Pattern: name, Location: fmt.Sprintf("%s[%d]", location, i)}, true
			}
		}
	case []any:
		for i, item := range val {
			if m, ok := DetectValue(fmt.Sprintf("%s[%d]", location, i), item); ok {
				return m, true
			}
		}
	case map[string]any:
		for _, k := range sortedKeys(val) {
			if m, ok := DetectValue(location+"."+k, val[k]); ok {
				return m, true
			}
		}
	case map[string][]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if m, ok := DetectValue(location+"."+k, val[k]); ok {
				return m, true
			}
		}
	}
	return Match{}, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
