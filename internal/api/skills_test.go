package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rscheiwe/open-skills/internal/model"
)

func publishBundle(t *testing.T, ts *httptest.Server, dir string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"bundle_dir":%q}`, dir)
	resp, err := http.Post(ts.URL+"/api/v1/skills", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/v1/skills: %v", err)
	}
	return resp
}

func TestPublishSkillValid(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dir := writeBundle(t, "csv-summarize", "1.0.0")
	resp := publishBundle(t, ts, dir)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var v model.SkillVersion
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if v.SkillName != "csv-summarize" {
		t.Errorf("SkillName = %q, want %q", v.SkillName, "csv-summarize")
	}
	if v.Version != "1.0.0" {
		t.Errorf("Version = %q, want %q", v.Version, "1.0.0")
	}
	if v.Entrypoint != "scripts/main.py:run" {
		t.Errorf("Entrypoint = %q, want %q", v.Entrypoint, "scripts/main.py:run")
	}
	if v.BundleDir != dir {
		t.Errorf("BundleDir = %q, want %q", v.BundleDir, dir)
	}
	if len(v.Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(v.Checksum))
	}
	if v.ID == "" {
		t.Error("expected a version id")
	}
}

func TestPublishSkillDuplicateVersion(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dir := writeBundle(t, "dup", "1.0.0")

	first := publishBundle(t, ts, dir)
	first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first publish status = %d, want 201", first.StatusCode)
	}

	second := publishBundle(t, ts, dir)
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Errorf("second publish status = %d, want 409", second.StatusCode)
	}

	var errResp map[string]string
	json.NewDecoder(second.Body).Decode(&errResp)
	if !strings.Contains(errResp["error"], "already published") {
		t.Errorf("error = %q, want conflict message", errResp["error"])
	}
}

func TestPublishSkillInvalidManifest(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dir := t.TempDir()
	// Version missing from the frontmatter.
	manifest := "---\nname: broken\nentrypoint: main.py\n---\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}

	resp := publishBundle(t, ts, dir)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestPublishSkillMissingScript(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dir := writeBundle(t, "noscript", "1.0.0")
	if err := os.Remove(filepath.Join(dir, "scripts", "main.py")); err != nil {
		t.Fatalf("remove script: %v", err)
	}

	resp := publishBundle(t, ts, dir)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestPublishSkillMissingBundleDir(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/skills", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("POST /api/v1/skills: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListSkills(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, name := range []string{"alpha", "beta"} {
		resp := publishBundle(t, ts, writeBundle(t, name, "1.0.0"))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("publish %s status = %d, want 201", name, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/v1/skills")
	if err != nil {
		t.Fatalf("GET /api/v1/skills: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var listResp struct {
		Skills []skillWithVersions `json:"skills"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(listResp.Skills) != 2 {
		t.Fatalf("skills count = %d, want 2", len(listResp.Skills))
	}

	// ListSkills orders by name.
	if listResp.Skills[0].Name != "alpha" || listResp.Skills[1].Name != "beta" {
		t.Errorf("skill names = %q, %q, want alpha, beta", listResp.Skills[0].Name, listResp.Skills[1].Name)
	}
	if len(listResp.Skills[0].Versions) != 1 {
		t.Errorf("alpha versions count = %d, want 1", len(listResp.Skills[0].Versions))
	}
}

func TestGetSkillWithVersions(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, version := range []string{"1.0.0", "1.1.0"} {
		resp := publishBundle(t, ts, writeBundle(t, "multi", version))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("publish %s status = %d, want 201", version, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/v1/skills/multi")
	if err != nil {
		t.Fatalf("GET /api/v1/skills/multi: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got skillWithVersions
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Name != "multi" {
		t.Errorf("Name = %q, want %q", got.Name, "multi")
	}
	if len(got.Versions) != 2 {
		t.Fatalf("versions count = %d, want 2", len(got.Versions))
	}

	seen := map[string]bool{}
	for _, v := range got.Versions {
		seen[v.Version] = true
	}
	if !seen["1.0.0"] || !seen["1.1.0"] {
		t.Errorf("versions = %v, want 1.0.0 and 1.1.0", seen)
	}
}

func TestGetSkillNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/skills/nonexistent")
	if err != nil {
		t.Fatalf("GET /api/v1/skills/nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
