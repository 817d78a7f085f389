package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/serviciomed/serviciomed/internal/render"
)

// maxFormBytes bounds exam form bodies.
const maxFormBytes = 1 << 20

// orderedFields reads the request body and returns its fields in the order
// the client sent them. File parts are ignored.
func orderedFields(w http.ResponseWriter, r *http.Request) ([]render.Field, error) {
	body := http.MaxBytesReader(w, r.Body, maxFormBytes)
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("content type: %w", err)
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		return parseURLEncoded(string(raw))
	case "multipart/form-data":
		return parseMultipart(multipart.NewReader(body, params["boundary"]))
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func parseURLEncoded(raw string) ([]render.Field, error) {
	var out []render.Field
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(k)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, err
		}
		out = append(out, render.Field{Name: name, Value: value})
	}
	return out, nil
}

func parseMultipart(mr *multipart.Reader) ([]render.Field, error) {
	var out []render.Field
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			_ = part.Close()
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, part); err != nil {
			return nil, err
		}
		out = append(out, render.Field{Name: part.FormName(), Value: buf.String()})
		_ = part.Close()
	}
}
