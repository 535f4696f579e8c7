package server

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lprview/internal/client"
	"lprview/internal/config"
	"lprview/internal/handler"
	"lprview/internal/service"
	"lprview/internal/session"
)

type backend struct {
	field  string
	srv    *httptest.Server
	calls  int32
	status int32
	body   atomic.Value
}

func newBackend(t *testing.T) *backend {
	return newBackendWithField(t, "image")
}

func newBackendWithField(t *testing.T, field string) *backend {
	t.Helper()

	b := &backend{field: field, status: http.StatusOK}
	b.body.Store("[]")
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&b.calls, 1)
		if _, _, err := r.FormFile(b.field); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"No image provided"}`)
			return
		}
		w.WriteHeader(int(atomic.LoadInt32(&b.status)))
		io.WriteString(w, b.body.Load().(string))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) respond(status int, body string) {
	atomic.StoreInt32(&b.status, int32(status))
	b.body.Store(body)
}

func (b *backend) requests() int32 { return atomic.LoadInt32(&b.calls) }

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, be *backend) *browser {
	t.Helper()

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "test"},
		Backend: config.BackendConfig{BaseURL: be.srv.URL, DetectPath: "/detect", CSVPath: "/download_csv", FieldName: be.field},
		Session: config.SessionConfig{Backend: config.SessionBackendMemory, TTL: time.Hour, CookieName: "lprview_session"},
		App:     config.AppConfig{MaxMultipartMemory: 1 << 20},
	}

	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	store := session.NewMemoryStore(cfg.Session.TTL, log)
	uploader := client.New(cfg.Backend, log)
	view := service.NewViewController(store, uploader, nil, uploader.DownloadCSVURL(), log)
	router := SetupRouter(handler.NewHandler(view, log), cfg, log, handler.BuildInfo{Version: "test"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &browser{t: t, base: srv.URL, client: &http.Client{Jar: jar}}
}

func (b *browser) read(resp *http.Response, err error) string {
	b.t.Helper()
	if err != nil {
		b.t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		b.t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	return string(body)
}

func (b *browser) open() string {
	return b.read(b.client.Get(b.base + "/"))
}

func (b *browser) selectFile(name string, data []byte) string {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, _ := w.CreateFormFile(handler.FormField, name)
	part.Write(data)
	w.Close()
	return b.read(b.client.Post(b.base+"/select", w.FormDataContentType(), body))
}

func (b *browser) detect() string {
	return b.read(b.client.Post(b.base+"/detect", "application/x-www-form-urlencoded", nil))
}

func TestScenario_DetectShowsResult(t *testing.T) {
	be := newBackend(t)
	be.respond(http.StatusOK, `[{"text":"AB12CDE","colour":"red","vehicle_type":"car","confidence":0.97}]`)
	br := newBrowser(t, be)

	br.open()
	page := br.selectFile("car1.jpg", []byte("\xff\xd8\xffjpeg"))
	if !strings.Contains(page, "Selected: car1.jpg") {
		t.Errorf("Expected selected file name on page")
	}

	page = br.detect()

	if n := strings.Count(page, `class="result"`); n != 1 {
		t.Errorf("Expected exactly 1 result block, got %d", n)
	}
	for _, want := range []string{
		"<b>Plate:</b> AB12CDE",
		"<b>Colour:</b> red",
		"<b>Type:</b> car",
		"<b>Confidence:</b> 0.97",
		"Results:",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
	if strings.Contains(page, "alert(") {
		t.Error("Expected no notice on success")
	}
	if be.requests() != 1 {
		t.Errorf("Expected 1 backend request, got %d", be.requests())
	}
}

func TestScenario_CustomBackendFieldName(t *testing.T) {
	be := newBackendWithField(t, "file")
	be.respond(http.StatusOK, `[{"text":"AB12CDE","colour":"red","vehicle_type":"car","confidence":0.97}]`)
	br := newBrowser(t, be)

	page := br.open()
	if !strings.Contains(page, `name="image"`) {
		t.Errorf("Expected picker field name image in page")
	}

	br.selectFile("car1.jpg", []byte("jpeg"))
	page = br.detect()

	if be.requests() != 1 {
		t.Fatalf("Expected 1 backend request, got %d", be.requests())
	}
	if strings.Contains(page, "Please select an image first") {
		t.Error("Selection was dropped")
	}
	if !strings.Contains(page, "<b>Plate:</b> AB12CDE") {
		t.Error("Expected result from backend reading the file field")
	}
}

func TestScenario_DetectWithoutSelection(t *testing.T) {
	be := newBackend(t)
	br := newBrowser(t, be)

	page := br.detect()

	if strings.Count(page, "Please select an image first") != 2 {
		t.Errorf("Expected notice in alert and noscript fallback, page:\n%s", page)
	}
	if be.requests() != 0 {
		t.Errorf("Expected no backend request, got %d", be.requests())
	}

	page = br.open()
	if strings.Contains(page, "Please select an image first") {
		t.Error("Notice must fire only once")
	}
}

func TestScenario_BackendError(t *testing.T) {
	be := newBackend(t)
	be.respond(http.StatusInternalServerError, `{"error":"boom"}`)
	br := newBrowser(t, be)

	br.selectFile("car1.jpg", []byte("jpeg"))
	page := br.detect()

	if !strings.Contains(page, "Upload failed") {
		t.Error("Expected upload failed notice")
	}
	if strings.Contains(page, "Results:") {
		t.Error("Expected no results section after first failed attempt")
	}
}

func TestScenario_FailureKeepsPreviousResults(t *testing.T) {
	be := newBackend(t)
	be.respond(http.StatusOK, `[{"text":"OLD123","colour":"White","vehicle_type":"Private","confidence":0.88}]`)
	br := newBrowser(t, be)

	br.selectFile("car1.jpg", []byte("jpeg"))
	br.detect()

	be.respond(http.StatusBadGateway, "")
	page := br.detect()

	if !strings.Contains(page, "Upload failed") {
		t.Error("Expected upload failed notice")
	}
	if !strings.Contains(page, "<b>Plate:</b> OLD123") {
		t.Error("Expected previous results to stay visible")
	}
}

func TestScenario_RedetectIssuesNewRequest(t *testing.T) {
	be := newBackend(t)
	br := newBrowser(t, be)

	for i := 0; i < 2; i++ {
		br.selectFile("car1.jpg", []byte("jpeg"))
		br.detect()
	}

	if be.requests() != 2 {
		t.Errorf("Expected 2 backend requests, got %d", be.requests())
	}
}

func TestPage_CSVLinkAlwaysPresent(t *testing.T) {
	be := newBackend(t)
	br := newBrowser(t, be)

	page := br.open()
	want := `href="` + be.srv.URL + `/download_csv" target="_blank" rel="noopener noreferrer"`
	if !strings.Contains(page, want) {
		t.Errorf("Expected CSV link %q in page:\n%s", want, page)
	}
	if strings.Contains(page, "Results:") {
		t.Error("Expected no results section on a fresh view")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	be := newBackend(t)
	be.respond(http.StatusOK, `[{"text":"AB12CDE","colour":"red","vehicle_type":"car","confidence":0.97}]`)
	first := newBrowser(t, be)

	first.selectFile("car1.jpg", []byte("jpeg"))
	first.detect()

	jar, _ := cookiejar.New(nil)
	second := &browser{t: t, base: first.base, client: &http.Client{Jar: jar}}
	page := second.open()
	if strings.Contains(page, "AB12CDE") {
		t.Error("Results leaked into another session")
	}
}

func TestHealthAndVersion(t *testing.T) {
	be := newBackend(t)
	br := newBrowser(t, be)

	if body := br.read(br.client.Get(br.base + "/health")); !strings.Contains(body, `"status":"OK"`) {
		t.Errorf("Unexpected health body %s", body)
	}
	if body := br.read(br.client.Get(br.base + "/version")); !strings.Contains(body, `"version":"test"`) {
		t.Errorf("Unexpected version body %s", body)
	}
}
