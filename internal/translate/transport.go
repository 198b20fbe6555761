package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 16 << 10

// StatusError is a non-2xx response from the completion endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.Status, e.Body)
}

// extras are request fields the OpenAI request type cannot express.
type extras struct {
	temperature float64
	topK        int
	reasoning   bool
}

type extrasKey struct{}

func withExtras(ctx context.Context, e extras) context.Context {
	return context.WithValue(ctx, extrasKey{}, e)
}

// transport adapts outgoing completion requests for the configured provider
// and turns error responses into *StatusError with the raw body.
type transport struct {
	base     *http.Client
	provider Provider
	referer  string
	title    string
}

func (t *transport) Do(req *http.Request) (*http.Response, error) {
	if e, ok := req.Context().Value(extrasKey{}).(extras); ok && req.Body != nil {
		if err := t.rewriteBody(req, e); err != nil {
			return nil, err
		}
	}
	if t.provider == ProviderOpenRouter {
		if t.referer != "" {
			req.Header.Set("HTTP-Referer", t.referer)
		}
		if t.title != "" {
			req.Header.Set("X-Title", t.title)
		}
	}

	resp, err := t.base.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (t *transport) rewriteBody(req *http.Request, e extras) error {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	_ = req.Body.Close()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	set := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		fields[key] = b
		return nil
	}
	// temperature is omitempty upstream; zero is a valid setting.
	if err := set("temperature", e.temperature); err != nil {
		return err
	}
	if t.provider == ProviderOpenRouter {
		if e.topK > 0 {
			if err := set("top_k", e.topK); err != nil {
				return err
			}
		}
		if e.reasoning {
			if err := set("reasoning", map[string]string{"effort": "high"}); err != nil {
				return err
			}
		}
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(out))
	req.ContentLength = int64(len(out))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(out)), nil
	}
	return nil
}
