package platform

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeAPI is a minimal in-memory Intersight: list endpoints with $top/$skip,
// "Field eq 'value'" filters joined by "and", POST and PATCH.
type fakeAPI struct {
	mu        sync.Mutex
	objects   map[string][]Resource // API path -> objects
	selectors map[string][]Resource // combined selector filter -> devices
	fail      map[string]int        // API path -> forced status
	posts     map[string][]Resource
	patches   map[string][]Resource
	nextMoid  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects:   make(map[string][]Resource),
		selectors: make(map[string][]Resource),
		fail:      make(map[string]int),
		posts:     make(map[string][]Resource),
		patches:   make(map[string][]Resource),
	}
}

func (f *fakeAPI) add(path string, objs ...Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = append(f.objects[path], objs...)
}

func (f *fakeAPI) server(t *testing.T) (*httptest.Server, *Client) {
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return ts, newTestClient(ts)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	if status, ok := f.fail[path]; ok {
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"forced failure"}`))
		return
	}

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		items := f.objects[path]
		if filter := q.Get("$filter"); filter != "" {
			if devices, ok := f.selectors[filter]; ok {
				items = devices
			} else {
				items = filterResources(items, filter)
			}
		}
		skip, _ := strconv.Atoi(q.Get("$skip"))
		top, err := strconv.Atoi(q.Get("$top"))
		if err != nil {
			top = len(items)
		}
		results := []Resource{}
		for i := skip; i < len(items) && i < skip+top; i++ {
			results = append(results, items[i])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"Results": results})

	case http.MethodPost:
		var body Resource
		json.NewDecoder(r.Body).Decode(&body)
		f.nextMoid++
		body["Moid"] = fmt.Sprintf("moid-%d", f.nextMoid)
		f.posts[path] = append(f.posts[path], body)
		f.objects[path] = append(f.objects[path], body)
		json.NewEncoder(w).Encode(body)

	case http.MethodPatch:
		var body Resource
		json.NewDecoder(r.Body).Decode(&body)
		f.patches[path] = append(f.patches[path], body)
		w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// filterResources applies "A eq 'x' and B.C eq 'y'" filters; other clauses
// are ignored.
func filterResources(items []Resource, filter string) []Resource {
	type clause struct{ field, value string }
	var clauses []clause
	for _, part := range strings.Split(filter, " and ") {
		i := strings.Index(part, " eq '")
		if i < 0 || !strings.HasSuffix(part, "'") {
			continue
		}
		value := strings.ReplaceAll(part[i+5:len(part)-1], "''", "'")
		clauses = append(clauses, clause{field: part[:i], value: value})
	}
	var out []Resource
	for _, item := range items {
		match := true
		for _, c := range clauses {
			var got string
			if strings.HasSuffix(c.field, ".Moid") {
				got = item.RefMoid(strings.TrimSuffix(c.field, ".Moid"))
			} else {
				got = item.String(c.field)
			}
			if got != c.value {
				match = false
				break
			}
		}
		if match {
			out = append(out, item)
		}
	}
	return out
}

func orgRef(moid string) map[string]interface{} {
	return map[string]interface{}{"ClassId": "mo.MoRef", "ObjectType": "organization.Organization", "Moid": moid}
}
