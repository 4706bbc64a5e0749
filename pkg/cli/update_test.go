package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func release(tag string, draft, pre bool, assets ...string) ghRelease {
	r := ghRelease{TagName: tag, Draft: draft, Prerelease: pre}
	for _, a := range assets {
		r.Assets = append(r.Assets, struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		}{a, "https://example.invalid/" + a})
	}
	return r
}

func TestPickRelease(t *testing.T) {
	rels := []ghRelease{
		release("v1.2.0", false, false, "layerkit_darwin_arm64.tar.gz", "layerkit_linux_amd64.tar.gz"),
		release("v2.0.0", true, false, "layerkit_linux_amd64.tar.gz"),
		release("v1.10.0-rc1", false, true),
		release("layerkit-v1.3.1", false, false, "layerkit_windows_amd64.zip", "layerkit_linux_arm64.tar.gz", "layerkit_linux_amd64.tar.gz"),
		release("nightly", false, false),
	}
	got, ok := pickRelease(rels, "linux", "amd64")
	if !ok {
		t.Fatal("expected a release")
	}
	if got.Version.String() != "1.3.1" {
		t.Fatalf("expected 1.3.1, got %s", got.Version)
	}
	if got.AssetURL != "https://example.invalid/layerkit_linux_amd64.tar.gz" {
		t.Fatalf("wrong asset %s", got.AssetURL)
	}
	if _, ok := pickRelease([]ghRelease{release("nightly", false, false)}, "linux", "amd64"); ok {
		t.Fatal("untagged releases should be ignored")
	}
}

func TestLatestReleaseFromAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/tool/releases" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"tag_name":"v0.4.0","assets":[{"name":"tool_linux_amd64","browser_download_url":"https://dl/x"}]},{"tag_name":"v0.3.9"}]`))
	}))
	defer srv.Close()

	rel, ok, err := latestRelease(context.Background(), srv.Client(), srv.URL, "owner/tool")
	if err != nil || !ok {
		t.Fatalf("latestRelease: ok=%v err=%v", ok, err)
	}
	if rel.Version.String() != "0.4.0" || rel.AssetURL != "https://dl/x" {
		t.Fatalf("unexpected release %+v", rel)
	}

	if _, _, err := latestRelease(context.Background(), srv.Client(), srv.URL, "owner/missing"); err == nil {
		t.Fatal("expected an error for a 404")
	}
}
