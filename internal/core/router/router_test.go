package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/campus-geo/internal/cache/cellindex"
	"github.com/mohammed-shakir/campus-geo/internal/cache/entitystore"
	"github.com/mohammed-shakir/campus-geo/internal/cache/redisstore"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/importer"
	h3mapper "github.com/mohammed-shakir/campus-geo/internal/mapper/h3"
	"github.com/mohammed-shakir/campus-geo/internal/search"
)

type published struct {
	scope model.ScopeID
	kind  model.Kind
	slugs []string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []published
}

func (f *fakeNotifier) PublishImport(scope model.ScopeID, kind model.Kind, slugs []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, published{scope, kind, slugs})
	return true
}

func newAPI(t *testing.T, maxBody int64) (http.Handler, *fakeNotifier) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	store := entitystore.New(rc, cellindex.NewRedisIndex(rc), h3mapper.New(), entitystore.Config{H3Res: 8}, nil)
	svc, err := search.New(store, search.Config{}, nil)
	if err != nil {
		t.Fatalf("search.New: %v", err)
	}
	n := &fakeNotifier{}
	h := Handler(Deps{
		Scopes:       store,
		Importer:     importer.New(store, importer.Config{Workers: 2}, nil),
		Sink:         store.Put,
		Search:       svc,
		Events:       n,
		MaxBodyBytes: maxBody,
	})
	return h, n
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, rd))
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

const buildings = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"Library","type":"academic"},"geometry":{"type":"Point","coordinates":[18.07,59.35]}},
	{"type":"Feature","properties":{"name":"Gym"},"geometry":{"type":"Polygon","coordinates":[[[18.06,59.34],[18.062,59.34],[18.062,59.342],[18.06,59.342],[18.06,59.34]]]}},
	{"type":"Feature","properties":{"name":"Library again"},"geometry":{"type":"Point","coordinates":[18.07,59.35]}}
]}`

type reportBody struct {
	Total      int `json:"total"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
	Details    struct {
		Imported   []string `json:"imported"`
		Duplicates []string `json:"duplicates"`
		Errors     []struct {
			Name  string `json:"name"`
			Error string `json:"error"`
		} `json:"errors"`
	} `json:"details"`
}

type resultsBody struct {
	Results []model.SearchResult `json:"results"`
}

func resultIDs(rs []model.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestImportThenSearch(t *testing.T) {
	h, n := newAPI(t, 0)

	if rr := do(t, h, http.MethodPut, "/v1/scopes/kth", ""); rr.Code != http.StatusOK {
		t.Fatalf("create scope status=%d body=%s", rr.Code, rr.Body)
	}

	rr := do(t, h, http.MethodPost, "/v1/scopes/kth/imports/buildings", buildings)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body)
	}
	rep := decodeJSON[reportBody](t, rr)
	if rep.Total != 3 || rep.Imported != 2 || rep.Duplicates != 1 || rep.Errors != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if !slices.Equal(rep.Details.Duplicates, []string{"Library again"}) {
		t.Fatalf("duplicates=%v", rep.Details.Duplicates)
	}
	if len(n.calls) != 1 || n.calls[0].kind != model.KindBuilding || !slices.Equal(n.calls[0].slugs, []string{"library", "gym"}) {
		t.Fatalf("notifier calls=%+v", n.calls)
	}

	rr = do(t, h, http.MethodGet, "/v1/scopes/kth/search?lat=59.341&lng=18.061", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("search status=%d body=%s", rr.Code, rr.Body)
	}
	res := decodeJSON[resultsBody](t, rr)
	if got := resultIDs(res.Results); !slices.Equal(got, []string{"gym", "library"}) {
		t.Fatalf("ranked ids=%v", got)
	}
	if res.Results[0].DistanceKm == nil || *res.Results[0].DistanceKm > 0.2 {
		t.Fatalf("gym distance=%v", res.Results[0].DistanceKm)
	}

	rr = do(t, h, http.MethodGet, "/v1/scopes/kth/search?q=acad", "")
	if res := decodeJSON[resultsBody](t, rr); !slices.Equal(resultIDs(res.Results), []string{"library"}) {
		t.Fatalf("text search=%v", resultIDs(res.Results))
	}

	rr = do(t, h, http.MethodGet, "/v1/scopes/kth/search?lat=59.341&lng=18.061&radiusKm=0.5", "")
	if res := decodeJSON[resultsBody](t, rr); !slices.Equal(resultIDs(res.Results), []string{"gym"}) {
		t.Fatalf("radius search=%v", resultIDs(res.Results))
	}

	rr = do(t, h, http.MethodGet, "/v1/scopes/kth/bounds", "")
	box := decodeJSON[model.BoundingBox](t, rr)
	want := model.BoundingBox{MinLng: 18.06, MinLat: 59.34, MaxLng: 18.07, MaxLat: 59.35}
	if box != want {
		t.Fatalf("bounds=%v want %v", box, want)
	}

	rr = do(t, h, http.MethodGet, "/v1/scopes/kth/bounds?kinds=poi", "")
	if body := strings.TrimSpace(rr.Body.String()); body != `{"empty":true}` {
		t.Fatalf("empty bounds body=%s", body)
	}

	rr = do(t, h, http.MethodGet, "/v1/scopes", "")
	if body := strings.TrimSpace(rr.Body.String()); body != `{"scopes":["kth"]}` {
		t.Fatalf("scopes body=%s", body)
	}
}

func TestImport_InvalidatesCachedCatalog(t *testing.T) {
	h, _ := newAPI(t, 0)
	do(t, h, http.MethodPut, "/v1/scopes/kth", "")

	first := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"Cafe"},"geometry":{"type":"Point","coordinates":[18,59]}}]}`
	second := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"Kiosk"},"geometry":{"type":"Point","coordinates":[18.001,59]}}]}`

	do(t, h, http.MethodPost, "/v1/scopes/kth/imports/poi", first)
	rr := do(t, h, http.MethodGet, "/v1/scopes/kth/search?kinds=poi", "")
	if got := resultIDs(decodeJSON[resultsBody](t, rr).Results); len(got) != 1 {
		t.Fatalf("before second import=%v", got)
	}

	do(t, h, http.MethodPost, "/v1/scopes/kth/imports/poi", second)
	rr = do(t, h, http.MethodGet, "/v1/scopes/kth/search?kinds=poi", "")
	if got := resultIDs(decodeJSON[resultsBody](t, rr).Results); !slices.Equal(got, []string{"cafe", "kiosk"}) {
		t.Fatalf("after second import=%v", got)
	}
}

func TestImport_ErrorStatuses(t *testing.T) {
	h, n := newAPI(t, 512)
	do(t, h, http.MethodPut, "/v1/scopes/kth", "")

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "unknown kind", target: "/v1/scopes/kth/imports/parking", body: buildings, want: 400},
		{name: "unknown scope", target: "/v1/scopes/nowhere/imports/poi", body: `{"type":"FeatureCollection","features":[]}`, want: 404},
		{name: "not a collection", target: "/v1/scopes/kth/imports/poi", body: `{"type":"Feature"}`, want: 400},
		{name: "not json", target: "/v1/scopes/kth/imports/poi", body: `nope`, want: 400},
		{name: "bad policy", target: "/v1/scopes/kth/imports/poi?missingName=guess", body: `{"type":"FeatureCollection","features":[]}`, want: 400},
		{name: "body too large", target: "/v1/scopes/kth/imports/poi", body: `{"type":"FeatureCollection","features":[` + strings.Repeat(" ", 600) + `]}`, want: 413},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tc.target, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.want, rr.Body)
			}
			if e := decodeJSON[errorBody](t, rr); e.Error == "" {
				t.Fatalf("missing error message")
			}
		})
	}
	if len(n.calls) != 0 {
		t.Fatalf("failed imports published events: %+v", n.calls)
	}
}

func TestImport_MissingNamePolicyOverride(t *testing.T) {
	h, _ := newAPI(t, 0)
	do(t, h, http.MethodPut, "/v1/scopes/kth", "")
	body := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[18,59]}}]}`

	rep := decodeJSON[reportBody](t, do(t, h, http.MethodPost, "/v1/scopes/kth/imports/building", body))
	if rep.Errors != 1 || rep.Details.Errors[0].Error != "Missing name" {
		t.Fatalf("default policy report=%+v", rep)
	}

	rep = decodeJSON[reportBody](t, do(t, h, http.MethodPost, "/v1/scopes/kth/imports/building?missingName=auto&labelPrefix=Hall", body))
	if rep.Imported != 1 || !slices.Equal(rep.Details.Imported, []string{"Hall 1"}) {
		t.Fatalf("auto policy report=%+v", rep)
	}
}

func TestSearch_BadParams(t *testing.T) {
	h, _ := newAPI(t, 0)
	do(t, h, http.MethodPut, "/v1/scopes/kth", "")

	tests := []struct {
		query string
		want  int
	}{
		{"lat=59", 400},
		{"lat=x&lng=18", 400},
		{"lat=NaN&lng=18", 400},
		{"radiusKm=2", 400},
		{"lat=59&lng=18&radiusKm=-1", 400},
		{"kinds=building,parking", 400},
		{"limit=-3", 400},
		{"lat=95&lng=18", 400},
		{"limit=5", 200},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			if rr := do(t, h, http.MethodGet, "/v1/scopes/kth/search?"+tc.query, ""); rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.want, rr.Body)
			}
		})
	}
	if rr := do(t, h, http.MethodGet, "/v1/scopes/nowhere/search", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown scope status=%d", rr.Code)
	}
}

func TestRank(t *testing.T) {
	h, _ := newAPI(t, 0)

	body := `{"origin":{"lng":0,"lat":0},"entities":[
		{"id":"a","name":"A","kind":"poi","coordinates":{"lat":3,"lng":0}},
		{"id":"b","name":"B","kind":"poi","coordinates":"{\"type\":\"Point\",\"coordinates\":[0,2]}"},
		{"id":"c","name":"C","kind":"building","coordinates":{"type":"LineString","coordinates":[[0,0.5],[0,1.5]]}},
		{"id":"d","name":"D","kind":"poi","coordinates":"garbage"}
	]}`
	rr := do(t, h, http.MethodPost, "/v1/rank", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	res := decodeJSON[resultsBody](t, rr)
	if got := resultIDs(res.Results); !slices.Equal(got, []string{"c", "b", "a", "d"}) {
		t.Fatalf("rank=%v want [c b a d]", got)
	}
	if res.Results[3].DistanceKm != nil || res.Results[3].Centroid != nil {
		t.Fatalf("unresolvable entity got a position: %+v", res.Results[3])
	}

	rr = do(t, h, http.MethodPost, "/v1/rank", `{"origin":null,"entities":[{"id":"x","coordinates":{"lat":1,"lng":1}},{"id":"y"}]}`)
	res = decodeJSON[resultsBody](t, rr)
	if !slices.Equal(resultIDs(res.Results), []string{"x", "y"}) || res.Results[0].DistanceKm != nil {
		t.Fatalf("null origin results=%+v", res.Results)
	}

	if rr := do(t, h, http.MethodPost, "/v1/rank", `{"origin":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", rr.Code)
	}
}

func TestRank_AntipodalOrigin(t *testing.T) {
	h, _ := newAPI(t, 0)

	body := `{"origin":{"lng":10.123456789,"lat":-44.0983},"entities":[
		{"id":"far","coordinates":{"lat":44.0983,"lng":-169.876543211}}
	]}`
	rr := do(t, h, http.MethodPost, "/v1/rank", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	res := decodeJSON[resultsBody](t, rr)
	if len(res.Results) != 1 || res.Results[0].DistanceKm == nil {
		t.Fatalf("results=%+v", res.Results)
	}
	if d := *res.Results[0].DistanceKm; math.Abs(d-20015.09) > 1 {
		t.Fatalf("distance=%v want ~20015km", d)
	}
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	var logs bytes.Buffer
	h := &handlers{d: Deps{Log: slog.New(slog.NewJSONHandler(&logs, nil))}}

	rr := httptest.NewRecorder()
	h.writeJSON(rr, httptest.NewRequest(http.MethodGet, "/v1/rank", nil), http.StatusOK, map[string]any{"d": math.NaN()})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"error":"internal error"}` {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(logs.String(), "encode response") {
		t.Fatalf("encode failure not logged: %s", logs.String())
	}
}

func TestBoundsEndpoint(t *testing.T) {
	h, _ := newAPI(t, 0)

	rr := do(t, h, http.MethodPost, "/v1/bounds", `{"geometries":[{"type":"Point","coordinates":[1,2]},"{\"type\":\"LineString\",\"coordinates\":[[-1,0],[3,5]]}","junk"]}`)
	box := decodeJSON[model.BoundingBox](t, rr)
	if want := (model.BoundingBox{MinLng: -1, MinLat: 0, MaxLng: 3, MaxLat: 5}); box != want {
		t.Fatalf("box=%v want %v", box, want)
	}

	rr = do(t, h, http.MethodPost, "/v1/bounds", `{"geometries":[]}`)
	if body := strings.TrimSpace(rr.Body.String()); body != `{"empty":true}` {
		t.Fatalf("empty body=%s", body)
	}
}
