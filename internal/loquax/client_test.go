package loquax

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Translate_RequestBody(t *testing.T) {
	var gotBody, gotContentType, gotMethod, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"translation":"bonjour"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithHTTPClient(server.Client()))

	resp, err := c.Translate(context.Background(), TranslationRequest{
		Text:         "hello",
		WithScansion: true,
		WithIPA:      false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"text":"hello","with_scansion":true,"with_ipa":false}`
	if gotBody != want {
		t.Errorf("body = %s, want %s", gotBody, want)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %q", gotContentType)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/" {
		t.Errorf("expected root path, got %q", gotPath)
	}
	if resp.Translation != "bonjour" {
		t.Errorf("expected 'bonjour', got %q", resp.Translation)
	}
}

func TestClient_Translate_EmptyTextIsSent(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"translation":""}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithHTTPClient(server.Client()))
	resp, err := c.Translate(context.Background(), TranslationRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != `{"text":"","with_scansion":false,"with_ipa":false}` {
		t.Errorf("unexpected body %s", gotBody)
	}
	if resp.Translation != "" {
		t.Errorf("expected empty translation, got %q", resp.Translation)
	}
}

func TestClient_Translate_SpecialCharacters(t *testing.T) {
	text := "Arma \"virumque\" canō,\nTroiae <quī> & prīmus ab ōrīs 🏛"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req TranslationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("server failed to decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"translation": req.Text})
	}))
	defer server.Close()

	c := NewClient(server.URL, WithHTTPClient(server.Client()))
	resp, err := c.Translate(context.Background(), TranslationRequest{Text: text, WithIPA: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != text {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", resp.Translation, text)
	}
}

func TestClient_Translate_ExtraFieldsIgnored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translation":"ár-ma","meter":"hexameter","lines":1}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithHTTPClient(server.Client()))
	resp, err := c.Translate(context.Background(), TranslationRequest{Text: "arma"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != "ár-ma" {
		t.Errorf("expected 'ár-ma', got %q", resp.Translation)
	}
}

func TestClient_Translate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		class   string
	}{
		{"server error", http.StatusInternalServerError, `{"translation":"x"}`, ErrTransport, ClassTransport},
		{"bad request", http.StatusBadRequest, `oops`, ErrStatus, ClassTransport},
		{"html body", http.StatusOK, `<html>nope</html>`, ErrDecode, ClassDecode},
		{"truncated json", http.StatusOK, `{"translation":`, ErrDecode, ClassDecode},
		{"missing key", http.StatusOK, `{"result":"bonjour"}`, ErrContract, ClassContract},
		{"null translation", http.StatusOK, `{"translation":null}`, ErrContract, ClassContract},
		{"number translation", http.StatusOK, `{"translation":42}`, ErrContract, ClassContract},
		{"array body", http.StatusOK, `["bonjour"]`, ErrContract, ClassContract},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(server.URL, WithHTTPClient(server.Client()))
			resp, err := c.Translate(context.Background(), TranslationRequest{Text: "hello"})
			if err == nil {
				t.Fatal("expected error")
			}
			if resp != nil {
				t.Errorf("expected nil response, got %+v", resp)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if got := Classify(err); got != tt.class {
				t.Errorf("Classify = %q, want %q", got, tt.class)
			}
		})
	}
}

func TestClient_Translate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(url, WithTimeout(time.Second))
	_, err := c.Translate(context.Background(), TranslationRequest{Text: "hello"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestClient_Translate_Endpoint(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"translation":"ok"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", WithHTTPClient(server.Client()), WithEndpoint("loquax"))
	if _, err := c.Translate(context.Background(), TranslationRequest{Text: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/loquax" {
		t.Errorf("expected /loquax, got %q", gotPath)
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithHTTPClient(server.Client()))
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_Ping_NotRunning(t *testing.T) {
	c := NewClient("http://localhost:19999", WithTimeout(100*time.Millisecond))
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected error when service not available")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("")
	if c.URL() != DefaultBaseURL+"/" {
		t.Errorf("unexpected default URL %q", c.URL())
	}
	if c.client.Timeout != 0 {
		t.Errorf("expected no default timeout, got %v", c.client.Timeout)
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("expected empty class, got %q", got)
	}
	if got := Classify(errors.New("other")); got != ClassUnknown {
		t.Errorf("expected unknown, got %q", got)
	}
}

func TestNewClient_TimeoutIndependentOfOptionOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	shared := server.Client()
	before := shared.Timeout

	for _, opts := range [][]Option{
		{WithTimeout(2 * time.Second), WithHTTPClient(shared)},
		{WithHTTPClient(shared), WithTimeout(2 * time.Second)},
	} {
		c := NewClient(server.URL, opts...)
		if c.client.Timeout != 2*time.Second {
			t.Errorf("expected 2s timeout, got %v", c.client.Timeout)
		}
		if c.client == shared {
			t.Error("expected a copy of the supplied client")
		}
		if c.client.Transport != shared.Transport {
			t.Error("expected the copy to keep the supplied transport")
		}
	}

	if shared.Timeout != before {
		t.Errorf("supplied client was modified: timeout %v", shared.Timeout)
	}
}
