package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/brhcimport/internal/config"
	"github.com/dgallion1/brhcimport/internal/pipeline"
	"github.com/dgallion1/brhcimport/internal/store"
)

const testKey = "test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "brhc.db"), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	cfg := config.Config{
		APIKey:         testKey,
		StrictMarkers:  true,
		MaxQueueSize:   4,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
	}
	orch := pipeline.NewOrchestrator(cfg, st, log)
	orch.Start(ctx)

	srv := httptest.NewServer(NewServer(orch, log, cfg))
	t.Cleanup(func() {
		srv.Close()
		orch.Stop()
		st.Close()
	})
	return srv
}

func manuscriptBytes(t *testing.T) []byte {
	t.Helper()
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("[S] Old Testament")
	w.AddParagraph().AddText("Chapter 1 Creation")
	p := w.AddParagraph()
	p.AddText("What is sin?").Color("0000FF")
	p.AddText("Sin is transgression.")
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write docx: %v", err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, srv *httptest.Server, filename string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(data)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/imports", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestImport_EndToEnd(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "book.docx", manuscriptBytes(t), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var queued struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var snap pipeline.JobSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if code := get(t, srv, queued.PollURL, &snap); code != http.StatusOK {
			t.Fatalf("status poll returned %d", code)
		}
		if snap.Status == pipeline.StatusCompleted || snap.Status == pipeline.StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed, got %q (errors %v)", snap.Status, snap.Errors)
	}
	if snap.Report == nil || snap.Report.Counts.Questions != 1 || snap.Report.Counts.Chapters != 1 {
		t.Errorf("unexpected report %+v", snap.Report)
	}

	var runs struct {
		Imports []map[string]any `json:"imports"`
	}
	get(t, srv, "/api/imports", &runs)
	if len(runs.Imports) != 1 || runs.Imports[0]["run_id"] != snap.Report.RunID {
		t.Errorf("unexpected imports %+v", runs.Imports)
	}

	var stats struct {
		Stats store.Stats `json:"stats"`
	}
	get(t, srv, "/api/stats/blocks", &stats)
	if stats.Stats.Blocks["question"] != 1 || stats.Stats.Blocks["answer"] != 1 {
		t.Errorf("unexpected block stats %+v", stats.Stats.Blocks)
	}
	if len(stats.Stats.Questions) != 1 || stats.Stats.Questions[0].Count != 1 {
		t.Errorf("unexpected question stats %+v", stats.Stats.Questions)
	}
}

func TestImport_Rejections(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, "book.pdf", []byte("%PDF-1.7"), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for pdf, got %d", resp.StatusCode)
	}

	resp = upload(t, srv, "huge.docx", bytes.Repeat([]byte("x"), 1<<20+1), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 for oversized upload, got %d", resp.StatusCode)
	}

	if code := get(t, srv, "/api/imports/missing/status", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"book.docx", "book.docx"},
		{"/etc/passwd", "passwd"},
		{"dir/../book.docx", "book.docx"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
