package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errInvalidJSON  = errors.New("invalid json body")
	errInvalidForm  = errors.New("invalid form body")
)

const defaultMultipartMemory = 32 << 20

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyJSON
	bodyForm
	bodyMultipart
)

type bodyContextKey struct{}

// parsedBody is the request body decoded once per request and shared by
// every stage. Form posts are held as a map of field to string (or []any of
// strings for repeated fields) so every stage treats them like JSON objects.
// value is nil when the request has no body the pipeline understands.
type parsedBody struct {
	kind  bodyKind
	value any
}

// Body returns the decoded JSON or form object of the request, after
// sanitization and validation when those stages ran. It is nil when the
// request carried neither.
func Body(r *http.Request) map[string]any {
	pb, ok := r.Context().Value(bodyContextKey{}).(*parsedBody)
	if !ok {
		return nil
	}
	m, _ := pb.value.(map[string]any)
	return m
}

// loadBody decodes the body at most once and caches it on the request
// context. The returned request carries the cache. JSON, urlencoded and
// multipart bodies are decoded; anything else passes through untouched.
func loadBody(r *http.Request, maxBytes int64) (*http.Request, *parsedBody, error) {
	if pb, ok := r.Context().Value(bodyContextKey{}).(*parsedBody); ok {
		return r, pb, nil
	}

	pb := &parsedBody{}
	if r.Body == nil || r.Body == http.NoBody {
		return withBody(r, pb), pb, nil
	}
	kind, boundary := contentKind(r)
	if kind == bodyNone {
		return withBody(r, pb), pb, nil
	}

	reader := io.Reader(r.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(r.Body, maxBytes+1)
	}
	raw, err := io.ReadAll(reader)
	_ = r.Body.Close()
	if err != nil {
		return r, nil, err
	}
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return r, nil, errBodyTooLarge
	}

	pb.kind = kind
	switch kind {
	case bodyJSON:
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &pb.value); err != nil {
				return r, nil, errInvalidJSON
			}
		}
		r = withBody(r, pb)
		setRawBody(r, raw)
	case bodyForm:
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return r, nil, errInvalidForm
		}
		pb.value = formToMap(form)
		r = withBody(r, pb)
		setForm(r, pb, form)
	case bodyMultipart:
		memory := maxBytes
		if memory <= 0 {
			memory = defaultMultipartMemory
		}
		mf, err := multipart.NewReader(bytes.NewReader(raw), boundary).ReadForm(memory)
		if err != nil {
			return r, nil, errInvalidForm
		}
		pb.value = formToMap(mf.Value)
		r = withBody(r, pb)
		r.MultipartForm = mf
		setForm(r, pb, mf.Value)
	}
	return r, pb, nil
}

// storeBody replaces the cached body and re-encodes it for the handler.
func storeBody(r *http.Request, pb *parsedBody, value any) {
	pb.value = value
	switch pb.kind {
	case bodyForm, bodyMultipart:
		m, _ := value.(map[string]any)
		setForm(r, pb, mapToForm(m))
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return
		}
		setRawBody(r, raw)
	}
}

// setForm publishes form as the parsed form of r so that PostFormValue and
// FormValue see exactly what the pipeline inspected. Urlencoded bodies are
// re-encoded; multipart bodies are consumed and only the parsed form remains.
func setForm(r *http.Request, pb *parsedBody, form url.Values) {
	r.PostForm = form
	merged := make(url.Values, len(form))
	for k, vs := range form {
		merged[k] = append(merged[k], vs...)
	}
	for k, vs := range r.URL.Query() {
		merged[k] = append(merged[k], vs...)
	}
	r.Form = merged

	if pb.kind == bodyMultipart {
		if r.MultipartForm != nil {
			r.MultipartForm.Value = form
		}
		setRawBody(r, nil)
		return
	}
	setRawBody(r, []byte(form.Encode()))
}

func formToMap(form url.Values) map[string]any {
	out := make(map[string]any, len(form))
	for k, vs := range form {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		out[k] = items
	}
	return out
}

func mapToForm(m map[string]any) url.Values {
	out := make(url.Values, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = []string{val}
		case []any:
			for _, item := range val {
				out[k] = append(out[k], fmt.Sprint(item))
			}
		case []string:
			out[k] = append([]string(nil), val...)
		case nil:
			out[k] = []string{""}
		default:
			out[k] = []string{fmt.Sprint(val)}
		}
	}
	return out
}

func withBody(r *http.Request, pb *parsedBody) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), bodyContextKey{}, pb))
}

func setRawBody(r *http.Request, raw []byte) {
	if len(raw) == 0 {
		r.Body = http.NoBody
		r.ContentLength = 0
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	r.ContentLength = int64(len(raw))
}

func contentKind(r *http.Request) (bodyKind, string) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return bodyNone, ""
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return bodyNone, ""
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return bodyJSON, ""
	case mt == "application/x-www-form-urlencoded":
		return bodyForm, ""
	case mt == "multipart/form-data" && params["boundary"] != "":
		return bodyMultipart, params["boundary"]
	}
	return bodyNone, ""
}

// writeBodyError maps loadBody failures to responses.
func writeBodyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		Fail(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge, nil)
	case errors.Is(err, errInvalidForm):
		Fail(w, http.StatusBadRequest, msgInvalidForm, nil)
	default:
		Fail(w, http.StatusBadRequest, msgInvalidJSON, nil)
	}
}
