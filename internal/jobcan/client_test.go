package jobcan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

func TestNewClient(t *testing.T) {
	c := NewClient("test-token")

	if c.Token != "test-token" {
		t.Errorf("Token = %q, want %q", c.Token, "test-token")
	}
	if c.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.BaseURL, DefaultBaseURL)
	}
	if c.HTTPClient == nil {
		t.Error("HTTPClient is nil, want non-nil default client")
	}
}

func TestClientWithBaseURL(t *testing.T) {
	c := NewClient("token").WithBaseURL("http://example.test/api")
	if c.BaseURL != "http://example.test/api" {
		t.Errorf("BaseURL = %q, want custom URL", c.BaseURL)
	}
	if c.Token != "token" {
		t.Errorf("Token = %q, want %q", c.Token, "token")
	}
}

func TestBuildURL(t *testing.T) {
	c := NewClient("token")

	got := c.buildURL("/v3/users/", nil)
	if got != DefaultBaseURL+"/v3/users/" {
		t.Errorf("buildURL = %q", got)
	}

	got = c.buildURL("/v2/requests/", map[string]string{
		"form_id":       "12",
		"applied_after": "2026/01/01 00:00:00",
	})
	if !strings.Contains(got, "form_id=12") {
		t.Errorf("buildURL missing form_id: %q", got)
	}
	if !strings.Contains(got, "applied_after=2026%2F01%2F01+00%3A00%3A00") {
		t.Errorf("buildURL did not escape applied_after: %q", got)
	}
}

func TestVerifyToken(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind dierr.Kind // "" means success
	}{
		{"valid token", http.StatusOK, ""},
		{"unauthorized", http.StatusUnauthorized, dierr.TokenInvalid},
		{"forbidden", http.StatusForbidden, dierr.TokenInvalid},
		{"server error", http.StatusInternalServerError, dierr.Unexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				if r.URL.Path != "/test/" {
					t.Errorf("path = %q, want /test/", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient("tok").WithBaseURL(srv.URL)
			fatal := c.VerifyToken(context.Background())

			if gotAuth != "Token tok" {
				t.Errorf("Authorization = %q, want %q", gotAuth, "Token tok")
			}
			if tt.wantKind == "" {
				if fatal != nil {
					t.Fatalf("VerifyToken() = %v, want nil", fatal)
				}
				return
			}
			if fatal == nil {
				t.Fatal("VerifyToken() = nil, want fatal")
			}
			if fatal.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", fatal.Kind, tt.wantKind)
			}
		})
	}
}

func TestVerifyToken_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := NewClient("tok").WithBaseURL(srv.URL)
	fatal := c.VerifyToken(context.Background())
	if fatal == nil {
		t.Fatal("VerifyToken() = nil, want fatal")
	}
	if fatal.Kind != dierr.RequestConnectionError {
		t.Errorf("kind = %q, want %q", fatal.Kind, dierr.RequestConnectionError)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name    string
		apiType APIType
		status  int
		body    string
		want    dierr.Kind
	}{
		{"400 invalid parameter", UserV3, 400, `{"code":400003}`, dierr.ApiInvalidParameter},
		{"400 invalid json shape", UserV3, 400, `{"code":400100}`, dierr.ApiInvalidJsonFormat},
		{"400 identity sync", UserV3, 400, `{"code":400900}`, dierr.ApiCommonIdSyncFailed},
		{"400 unknown code", UserV3, 400, `{"code":499999}`, dierr.ApiUnexpected},
		{"404", Form, 404, `{}`, dierr.ApiDataNotFound},
		{"500", Group, 500, ``, dierr.ApiUnexpected},
		{"teapot", Group, 418, ``, dierr.ApiUnexpected},
		{"detail 400 invalid parameter", RequestDetail, 400, `{"code":400003}`, dierr.FormDetailApiInvalidParameter},
		{"detail 400 other code", RequestDetail, 400, `{"code":400100}`, dierr.FormDetailApiUnexpected},
		{"detail 404", RequestDetail, 404, `{}`, dierr.FormDetailApiDataNotFound},
		{"detail 500", RequestDetail, 500, ``, dierr.FormDetailApiUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := classifyStatus(tt.apiType, tt.status, []byte(tt.body))
			if w.Kind != tt.want {
				t.Errorf("classifyStatus(%s, %d) = %q, want %q", tt.apiType, tt.status, w.Kind, tt.want)
			}
			if w.Args["api_type"] != string(tt.apiType) {
				t.Errorf("api_type arg = %q", w.Args["api_type"])
			}
		})
	}
}

func TestPaginate_FollowsNextAndAggregates(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprintf(w, `{"count":3,"next":"%s/v3/users/?page=2","previous":null,"results":[{"user_code":"A"}]}`, srv.URL)
		case "2":
			fmt.Fprint(w, `{"count":3,"next":null,"previous":null,"results":[{"user_code":"B"},{"user_code":"C"}]}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	c := NewClient("tok").WithBaseURL(srv.URL)

	var codes []string
	var pages []int
	clean, err := c.Paginate(context.Background(), UserV3, nil, func(pageNo int, body []byte, page *Page) error {
		pages = append(pages, pageNo)
		for _, raw := range page.Results {
			var item struct {
				UserCode string `json:"user_code"`
			}
			if err := json.Unmarshal(raw, &item); err != nil {
				return err
			}
			codes = append(codes, item.UserCode)
		}
		return nil
	}, func(w *dierr.Warning) {
		t.Errorf("unexpected warning: %v", w)
	})

	if err != nil {
		t.Fatalf("Paginate() error: %v", err)
	}
	if !clean {
		t.Error("Paginate() clean = false, want true")
	}
	if want := []string{"A", "B", "C"}; !equalStrings(codes, want) {
		t.Errorf("codes = %v, want %v", codes, want)
	}
	if want := []int{1, 2}; len(pages) != 2 || pages[0] != want[0] || pages[1] != want[1] {
		t.Errorf("pages = %v, want %v", pages, want)
	}
}

func TestPaginate_RetryablePageEndsWalkDirty(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprintf(w, `{"count":2,"next":"%s/v1/groups/?page=2","previous":null,"results":[{"group_code":"g1"}]}`, srv.URL)
		case "2":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient("tok").WithBaseURL(srv.URL)

	var warnings []*dierr.Warning
	var got int
	clean, err := c.Paginate(context.Background(), Group, nil, func(pageNo int, body []byte, page *Page) error {
		got += len(page.Results)
		return nil
	}, func(w *dierr.Warning) {
		warnings = append(warnings, w)
	})

	if err != nil {
		t.Fatalf("Paginate() error: %v", err)
	}
	if clean {
		t.Error("Paginate() clean = true, want false")
	}
	if got != 1 {
		t.Errorf("results before failure = %d, want 1", got)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if warnings[0].Kind != dierr.ApiUnexpected {
		t.Errorf("warning kind = %q, want %q", warnings[0].Kind, dierr.ApiUnexpected)
	}
	if warnings[0].Args["page"] != "2" {
		t.Errorf("warning page = %q, want %q", warnings[0].Args["page"], "2")
	}
}

func TestFetchRequestDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/requests/r1/":
			fmt.Fprint(w, `{"id":"r1","title":"travel expense"}`)
		case "/v1/requests/r2/":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{}`)
		}
	}))
	defer srv.Close()

	c := NewClient("tok").WithBaseURL(srv.URL)

	body, warn, err := c.FetchRequestDetail(context.Background(), "r1")
	if err != nil || warn != nil {
		t.Fatalf("FetchRequestDetail(r1) = warn %v, err %v", warn, err)
	}
	if !strings.Contains(string(body), "travel expense") {
		t.Errorf("body = %q", body)
	}

	_, warn, err = c.FetchRequestDetail(context.Background(), "r2")
	if err != nil {
		t.Fatalf("FetchRequestDetail(r2) error: %v", err)
	}
	if warn == nil {
		t.Fatal("FetchRequestDetail(r2) warning = nil, want not-found")
	}
	if warn.Kind != dierr.FormDetailApiDataNotFound {
		t.Errorf("kind = %q, want %q", warn.Kind, dierr.FormDetailApiDataNotFound)
	}
	if warn.Args["request_id"] != "r2" {
		t.Errorf("request_id = %q, want %q", warn.Args["request_id"], "r2")
	}
}

func TestFetchListPage_DecodeFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	c := NewClient("tok").WithBaseURL(srv.URL)
	_, _, warn, err := c.FetchListPage(context.Background(), UserV3, srv.URL+"/v3/users/")
	if err != nil {
		t.Fatalf("FetchListPage() error: %v", err)
	}
	if warn == nil {
		t.Fatal("FetchListPage() warning = nil, want decode warning")
	}
	if warn.Kind != dierr.ApiResponseJsonDecodeError {
		t.Errorf("kind = %q, want %q", warn.Kind, dierr.ApiResponseJsonDecodeError)
	}
}

func TestDoGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient("tok").WithBaseURL(srv.URL).WithTimeouts(50*time.Millisecond, 50*time.Millisecond)
	fatal := c.VerifyToken(context.Background())
	if fatal == nil {
		t.Fatal("VerifyToken() = nil, want timeout fatal")
	}
	if fatal.Kind != dierr.RequestReadTimeout {
		t.Errorf("kind = %q, want %q", fatal.Kind, dierr.RequestReadTimeout)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
