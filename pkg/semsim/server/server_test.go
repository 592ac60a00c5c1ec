package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ukaji3/semsim-go/pkg/semsim/config"
	"github.com/ukaji3/semsim-go/pkg/semsim/embedding"
	"github.com/ukaji3/semsim-go/pkg/semsim/jobs"
)

// stubEmbedder maps a few words to fixed vectors.
var stubEmbedder = embedding.Func(func(_ context.Context, text string) ([]float32, error) {
	switch text {
	case "cat":
		return []float32{1, 0}, nil
	case "dog":
		return []float32{0.6, 0.8}, nil
	}
	return []float32{0, 0}, nil
})

func newTestServer(t *testing.T, withStore bool) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.UploadDir = t.TempDir()

	var store *jobs.Store
	if withStore {
		var err error
		store, err = jobs.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
	}

	srv, err := New(cfg, stubEmbedder, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func workbookBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// assertScore parses a numeric cell of Sheet1 and compares it within 1e-6.
func assertScore(t *testing.T, f *excelize.File, cell string, want float64) {
	t.Helper()
	v, err := f.GetCellValue("Sheet1", cell)
	if err != nil {
		t.Fatal(err)
	}
	got, err := strconv.ParseFloat(v, 64)
	if err != nil {
		t.Fatalf("%s = %q: %v", cell, v, err)
	}
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", cell, got, want)
	}
}

func upload(t *testing.T, url, filename string, data []byte, fields map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	resp, err := http.Post(url+"/api/calculate-ass", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestCalculateSuccess(t *testing.T) {
	_, ts := newTestServer(t, true)
	data := workbookBytes(t, [][]interface{}{
		{"标准答案", "预测文本"},
		{"cat", "cat"},
		{"cat", "dog"},
		{"cat", "fish"},
	})

	resp, out := upload(t, ts.URL, "answers.xlsx", data, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	if out["status"] != "success" || out["scored"] != float64(2) || out["skipped"] != float64(1) {
		t.Errorf("response = %v", out)
	}
	resultFile, _ := out["resultFile"].(string)
	if !strings.HasPrefix(resultFile, "/uploads/result_") {
		t.Fatalf("resultFile = %q", resultFile)
	}

	dl, err := http.Get(ts.URL + resultFile)
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	f, err := excelize.OpenReader(dl.Body)
	if err != nil {
		t.Fatalf("open downloaded workbook: %v", err)
	}
	defer f.Close()
	assertScore(t, f, "C3", 0.6)

	jobResp, err := http.Get(ts.URL + "/api/jobs/" + out["jobId"].(string))
	if err != nil {
		t.Fatal(err)
	}
	defer jobResp.Body.Close()
	var rec jobs.Record
	if err := json.NewDecoder(jobResp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.State != "done" || rec.Scored != 2 {
		t.Errorf("ledger record = %+v", rec)
	}

	progResp, err := http.Get(ts.URL + "/progress")
	if err != nil {
		t.Fatal(err)
	}
	defer progResp.Body.Close()
	var prog progressState
	json.NewDecoder(progResp.Body).Decode(&prog)
	if !prog.Completed || prog.Processed != 3 || prog.State != "done" {
		t.Errorf("progress = %+v", prog)
	}
}

func TestCalculateRejects(t *testing.T) {
	_, ts := newTestServer(t, false)

	tests := []struct {
		name     string
		filename string
		rows     [][]interface{}
		fields   map[string]string
		wantMsg  string
	}{
		{"no file", "", nil, nil, "no file"},
		{"wrong extension", "data.csv", [][]interface{}{{"a", "b"}, {"c", "d"}}, nil, ".xlsx"},
		{"header only", "h.xlsx", [][]interface{}{{"reference", "candidate"}}, nil, "header"},
		{"one column", "c.xlsx", [][]interface{}{{"reference"}, {"cat"}}, nil, "2 columns"},
		{"no valid data", "n.xlsx", [][]interface{}{{"reference", "candidate"}, {"fish", "fish"}}, nil, "no valid data"},
		{"missing column", "m.xlsx", [][]interface{}{{"reference", "candidate"}, {"cat", "cat"}}, map[string]string{"reference": "nope"}, `"nope"`},
		{"empty fallback header", "e.xlsx", [][]interface{}{{"question", nil, "answer"}, {"cat", "cat", "cat"}}, nil, "B1"},
		{"bad mode", "b.xlsx", [][]interface{}{{"reference", "candidate"}, {"cat", "cat"}}, map[string]string{"mode": "sideways"}, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data []byte
			if tt.rows != nil {
				data = workbookBytes(t, tt.rows)
			}
			resp, out := upload(t, ts.URL, tt.filename, data, tt.fields)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%v)", resp.StatusCode, out)
			}
			msg, _ := out["error"].(string)
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error = %q, want containing %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestCalculateInPlaceMode(t *testing.T) {
	_, ts := newTestServer(t, false)
	data := workbookBytes(t, [][]interface{}{
		{"q", "reference", "candidate", "score"},
		{"1", "cat", "dog"},
	})
	resp, out := upload(t, ts.URL, "in.xlsx", data, map[string]string{"mode": "inplace"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	dl, err := http.Get(ts.URL + out["resultFile"].(string))
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	f, err := excelize.OpenReader(dl.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	assertScore(t, f, "D2", 0.6)
}

func TestDownloadUnknown(t *testing.T) {
	_, ts := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/uploads/result_nope.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestJobsWithoutStore(t *testing.T) {
	_, ts := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/api/jobs")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestJobNotFound(t *testing.T) {
	_, ts := newTestServer(t, true)
	resp, err := http.Get(ts.URL + "/api/jobs/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["status"] != "ok" || out["model"] != "func" {
		t.Errorf("healthz = %v", out)
	}
}

func TestArtifactsExpire(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result_x.xlsx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := NewArtifacts(dir, 20*time.Millisecond, 0, nil)
	defer a.Close()

	a.Register("result_x.xlsx")
	if got, ok := a.Lookup("result_x.xlsx"); !ok || got != path {
		t.Fatalf("Lookup() = %q, %v", got, ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired artifact was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := a.Lookup("result_x.xlsx"); ok {
		t.Error("Lookup() found expired artifact")
	}
}

func TestArtifactsSweep(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "result_old.xlsx")
	fresh := filepath.Join(dir, "result_new.xlsx")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(other, past, past)

	a := NewArtifacts(dir, 24*time.Hour, 0, nil)
	defer a.Close()
	n, err := a.Sweep(time.Now())
	if err != nil || n != 1 {
		t.Fatalf("Sweep() = %d, %v; want 1", n, err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old artifact still present")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed: %v", p, err)
		}
	}
}

func TestCalculateCancelledRemovesPartialResult(t *testing.T) {
	cfg := config.Default()
	cfg.Server.UploadDir = t.TempDir()
	cfg.Job.BatchSize = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	svc := embedding.Func(func(c context.Context, text string) ([]float32, error) {
		calls++
		if calls == 4 {
			cancel()
		}
		return stubEmbedder(c, text)
	})
	srv, err := New(cfg, svc, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "in.xlsx")
	fw.Write(workbookBytes(t, [][]interface{}{
		{"reference", "candidate"},
		{"cat", "cat"},
		{"cat", "dog"},
		{"dog", "dog"},
		{"cat", "dog"},
	}))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/calculate-ass", &body).WithContext(ctx)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != StatusClientClosedRequest {
		t.Errorf("status = %d, want %d (%s)", rec.Code, StatusClientClosedRequest, rec.Body.String())
	}
	if calls != 4 {
		t.Errorf("embed calls = %d, want 4", calls)
	}
	entries, err := os.ReadDir(cfg.Server.UploadDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("left on disk: %s", e.Name())
	}
}

func TestClassifyContextErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("job: %w", context.Canceled), StatusClientClosedRequest},
		{fmt.Errorf("job: %w", context.DeadlineExceeded), http.StatusRequestTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *HTTPError
		if !errors.As(classify(tt.err), &he) || he.Code != tt.code {
			t.Errorf("classify(%v) = %v, want code %d", tt.err, he, tt.code)
		}
	}
}

func TestArtifactsPeriodicSweep(t *testing.T) {
	dir := t.TempDir()
	a := NewArtifacts(dir, time.Hour, 10*time.Millisecond, nil)
	defer a.Close()

	stale := filepath.Join(dir, "result_partial.xlsx")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(stale, past, past)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stale artifact was not swept")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
