package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb/adbtest"
	"github.com/blackwell-systems/droiddb/internal/localdb/sqlitetest"
	"github.com/blackwell-systems/droiddb/internal/metrics"
	"github.com/blackwell-systems/droiddb/internal/snapshots"
	"github.com/blackwell-systems/droiddb/internal/store"
	"github.com/blackwell-systems/droiddb/internal/transfer"
)

const remoteBase = "/data/data/com.example.app/databases/app.db"

type fixture struct {
	dev    *adbtest.Device
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dev := adbtest.New("emulator-5554")
	dev.Debuggable["com.example.app"] = true
	state := sqlitetest.NewWALState(t)
	dev.SetFile(remoteBase, state.PreBase)
	dev.SetFile(remoteBase+"-wal", state.PreWAL)

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	if err := st.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	resolver := access.NewResolver(dev, nil)
	mgr := snapshots.New(resolver, transfer.New(dev, nil), st, t.TempDir(), nil)

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.Collectors()...)

	api := New(resolver, mgr, reg, time.Minute, nil)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &fixture{dev: dev, server: srv}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode failed: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) post(t *testing.T, path string, body, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("POST %s: decode failed: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) pull(t *testing.T) string {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Pathway string `json:"pathway"`
	}
	status := f.post(t, "/api/pull", map[string]string{
		"device_id":    "emulator-5554",
		"package_name": "com.example.app",
		"db_name":      "app.db",
	}, &resp)
	if status != http.StatusOK || !resp.Success || resp.Token == "" {
		t.Fatalf("pull = %d %+v", status, resp)
	}
	if resp.Pathway != "run-as" {
		t.Errorf("pathway = %q, want run-as", resp.Pathway)
	}
	return resp.Token
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	if status := f.get(t, "/healthz", &body); status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", status, body)
	}
}

func TestDevices(t *testing.T) {
	f := newFixture(t)
	var devices []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Root   bool   `json:"root"`
	}
	if status := f.get(t, "/api/devices", &devices); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(devices) != 1 || devices[0].ID != "emulator-5554" || devices[0].Status != "device" || devices[0].Root {
		t.Errorf("devices = %+v", devices)
	}
}

func TestPackages(t *testing.T) {
	f := newFixture(t)
	f.dev.Responses["shell pm list packages -3"] = adbtest.Response{
		Output: "package:com.example.app\npackage:com.example.other",
	}

	var pkgs []map[string]any
	if status := f.get(t, "/api/packages/emulator-5554?filter=thirdParty", &pkgs); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(pkgs) != 2 || pkgs[0]["name"] != "com.example.app" || pkgs[0]["debuggable"] != nil {
		t.Errorf("packages = %v", pkgs)
	}

	if status := f.get(t, "/api/packages/emulator-5554?filter=nope", nil); status != http.StatusBadRequest {
		t.Errorf("bad filter status = %d", status)
	}
}

func TestPackageDebuggable(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		pkg  string
		want bool
	}{
		{"com.example.app", true},
		{"com.example.release", false},
	}
	for _, tt := range tests {
		var body map[string]bool
		f.get(t, "/api/package-debuggable/emulator-5554/"+tt.pkg, &body)
		if body["debuggable"] != tt.want {
			t.Errorf("%s debuggable = %v, want %v", tt.pkg, body["debuggable"], tt.want)
		}
	}
}

func TestDatabases(t *testing.T) {
	f := newFixture(t)
	var dbs []string
	if status := f.get(t, "/api/databases/emulator-5554/com.example.app", &dbs); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(dbs) != 1 || dbs[0] != "app.db" {
		t.Errorf("databases = %v", dbs)
	}

	dbs = nil
	f.get(t, "/api/databases/emulator-5554/com.example.release", &dbs)
	if dbs == nil || len(dbs) != 0 {
		t.Errorf("inaccessible package should list no databases, got %v", dbs)
	}
}

func TestPullAndBrowse(t *testing.T) {
	f := newFixture(t)
	token := f.pull(t)

	var tables []string
	if status := f.get(t, "/api/tables/"+token, &tables); status != http.StatusOK {
		t.Fatalf("tables status = %d", status)
	}
	if len(tables) != 1 || tables[0] != "notes" {
		t.Errorf("tables = %v", tables)
	}

	var page struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Total   int              `json:"total"`
	}
	if status := f.get(t, "/api/table/"+token+"/notes?limit=1&offset=1", &page); status != http.StatusOK {
		t.Fatalf("table status = %d", status)
	}
	// The second row only exists in the pulled WAL.
	if page.Total != 2 || len(page.Rows) != 1 || page.Rows[0]["body"] != "only in wal" {
		t.Errorf("page = %+v", page)
	}

	if status := f.get(t, "/api/table/"+token+"/missing", nil); status != http.StatusNotFound {
		t.Errorf("missing table status = %d", status)
	}
	if status := f.get(t, "/api/table/"+token+"/notes?limit=-1", nil); status != http.StatusBadRequest {
		t.Errorf("negative limit status = %d", status)
	}

	var res struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Message string           `json:"message"`
	}
	if status := f.post(t, "/api/query/"+token, map[string]string{"query": "SELECT COUNT(*) AS n FROM notes"}, &res); status != http.StatusOK {
		t.Fatalf("query status = %d", status)
	}
	if len(res.Rows) != 1 || res.Rows[0]["n"] != float64(2) {
		t.Errorf("query result = %+v", res)
	}

	res.Message = ""
	f.post(t, "/api/query/"+token, map[string]string{"query": "DELETE FROM notes"}, &res)
	if !strings.Contains(res.Message, "Rows affected: 2") {
		t.Errorf("message = %q", res.Message)
	}

	if status := f.post(t, "/api/query/"+token, map[string]string{"query": ""}, nil); status != http.StatusBadRequest {
		t.Errorf("empty query status = %d", status)
	}
}

func TestPull_Validation(t *testing.T) {
	f := newFixture(t)
	if status := f.post(t, "/api/pull", map[string]string{"device_id": "emulator-5554"}, nil); status != http.StatusBadRequest {
		t.Errorf("missing parameters status = %d", status)
	}

	var body map[string]any
	status := f.post(t, "/api/pull", map[string]string{
		"device_id":    "emulator-5554",
		"package_name": "com.example.release",
		"db_name":      "app.db",
	}, &body)
	if status != http.StatusForbidden || body["success"] != false {
		t.Errorf("no access pull = %d %v", status, body)
	}
}

func TestUnknownToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/tables/nope", "/api/table/nope/notes"} {
		if status := f.get(t, path, nil); status != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, status)
		}
	}
	if status := f.post(t, "/api/query/nope", map[string]string{"query": "SELECT 1"}, nil); status != http.StatusNotFound {
		t.Errorf("query status = %d, want 404", status)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.pull(t)

	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	for _, name := range []string{"droiddb_transfers_total", "droiddb_extractions_total"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}
