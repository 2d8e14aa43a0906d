package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text         string `json:"text"`
			WithScansion bool   `json:"with_scansion"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "fail" {
			w.Write([]byte(`{"error":"no"}`))
			return
		}
		out := "rendered " + req.Text
		if req.WithScansion {
			out += " (scanned)"
		}
		json.NewEncoder(w).Encode(map[string]string{"translation": out})
	}))
	t.Cleanup(server.Close)
	return server
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestTranslateCommand_WritesOutputFile(t *testing.T) {
	server := echoServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	_, err := run(t, "translate",
		"--url", server.URL,
		"--db", filepath.Join(dir, "loquax.db"),
		"--log-level", "error",
		"--text", "arma",
		"--scansion",
		"--no-history=false",
		"--repeat", "1",
		"-o", out)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(b) != "rendered arma (scanned)" {
		t.Errorf("unexpected output %q", b)
	}

	stdout, err := run(t, "history", "stats",
		"--url", server.URL,
		"--db", filepath.Join(dir, "loquax.db"),
		"--log-level", "error")
	if err != nil {
		t.Fatalf("history stats failed: %v", err)
	}
	if !strings.Contains(stdout, "Exchanges:        1") {
		t.Errorf("expected one recorded exchange, got:\n%s", stdout)
	}
}

func TestTranslateCommand_ContractFailureKeepsOutput(t *testing.T) {
	server := echoServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	os.WriteFile(out, []byte("previous"), 0644)

	_, err := run(t, "translate",
		"--url", server.URL,
		"--db", filepath.Join(dir, "loquax.db"),
		"--log-level", "error",
		"--text", "fail",
		"--scansion=false",
		"--no-history",
		"--repeat", "1",
		"-o", out)
	if err == nil {
		t.Fatal("expected error for missing translation")
	}

	b, _ := os.ReadFile(out)
	if string(b) != "previous" {
		t.Errorf("output file should be unchanged, got %q", b)
	}
}

func TestBatchCommand(t *testing.T) {
	server := echoServer(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	os.WriteFile(in, []byte("id,verse\n1,arma\n2,fail\n3,cano\n"), 0644)

	_, err := run(t, "batch",
		"--url", server.URL,
		"--db", filepath.Join(dir, "loquax.db"),
		"--log-level", "error",
		"-i", in, "-o", out,
		"-l", "1", "--header",
		"--no-history",
		"--workers", "2")
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}

	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "id,verse,translation,error" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][2] != "rendered arma" || rows[1][3] != "" {
		t.Errorf("unexpected row 1 %v", rows[1])
	}
	if rows[2][2] != "" || rows[2][3] != "contract" {
		t.Errorf("unexpected row 2 %v", rows[2])
	}
	if rows[3][0] != "3" || rows[3][2] != "rendered cano" {
		t.Errorf("rows out of order: %v", rows[3])
	}
}

func TestReadBatchInput_Lines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	os.WriteFile(path, []byte("arma virumque cano\n\nTroiae qui primus\n"), 0644)

	records, err := readBatchInput(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || records[1][0] != "Troiae qui primus" {
		t.Errorf("unexpected records %v", records)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("arma", 10); got != "arma" {
		t.Errorf("short text changed: %q", got)
	}
	if got := snippet("ārma virumque canō", 8); got != "ārma ..." {
		t.Errorf("unexpected snippet %q", got)
	}
}

// translateArgs resets the translate flags that earlier runs may have set.
func translateArgs(url, dir string, extra ...string) []string {
	args := []string{"translate",
		"--url", url,
		"--db", filepath.Join(dir, "loquax.db"),
		"--log-level", "error",
		"--no-history",
		"--scansion=false",
		"--ipa=false",
		"--repeat", "1",
		"-o", "",
	}
	return append(args, extra...)
}

func TestTranslateCommand_EmptyTextIsSent(t *testing.T) {
	var gotBody string
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"translation":""}`))
	}))
	defer server.Close()

	stdout, err := run(t, translateArgs(server.URL, t.TempDir(), "--text", "")...)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", calls.Load())
	}
	if gotBody != `{"text":"","with_scansion":false,"with_ipa":false}` {
		t.Errorf("unexpected body %s", gotBody)
	}
	if stdout != "\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestTranslateCommand_StdoutEndsWithSingleNewline(t *testing.T) {
	server := echoServer(t)

	stdout, err := run(t, translateArgs(server.URL, t.TempDir(), "--text", "arma")...)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if stdout != "rendered arma\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestTranslateCommand_RepeatLastResolutionWins(t *testing.T) {
	var calls atomic.Int32
	fastDone := make(chan struct{}, 3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-fastDone
			<-fastDone
			time.Sleep(50 * time.Millisecond)
			w.Write([]byte(`{"translation":"slow"}`))
			return
		}
		w.Write([]byte(`{"translation":"fast"}`))
		fastDone <- struct{}{}
	}))
	defer server.Close()

	stdout, err := run(t, translateArgs(server.URL, t.TempDir(), "--text", "arma", "--repeat", "3")...)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", calls.Load())
	}
	if stdout != "slow\n" {
		t.Errorf("last response to resolve should be written once, got %q", stdout)
	}
}

func TestTranslateCommand_RepeatAllFailedKeepsOutput(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	os.WriteFile(out, []byte("previous"), 0644)

	_, err := run(t, translateArgs(server.URL, dir, "--text", "arma", "--repeat", "3", "-o", out)...)
	if err == nil || !strings.Contains(err.Error(), "all 3 requests failed (transport)") {
		t.Errorf("expected all-failed transport error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", calls.Load())
	}

	b, _ := os.ReadFile(out)
	if string(b) != "previous" {
		t.Errorf("output file should be unchanged, got %q", b)
	}
}
