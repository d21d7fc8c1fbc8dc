package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// pagedServer serves a POST /api/v3/search chain of pages, each carrying a
// continuation link to the next.
func pagedServer(t *testing.T, pages [][]string) (*httptest.Server, *int) {
	t.Helper()
	requests := 0

	mux := http.NewServeMux()
	var srv *httptest.Server

	writePage := func(w http.ResponseWriter, idx int) {
		page := searchPage{}
		for _, id := range pages[idx] {
			page.Data = append(page.Data, Record{
				ID:         id,
				Attributes: map[string]interface{}{"name": "dataset " + id},
			})
		}
		page.Meta.Stats.Count = len(pages) // arbitrary but stable
		if idx+1 < len(pages) {
			page.Meta.Next = fmt.Sprintf("%s/api/v3/search?page=%d", srv.URL, idx+1)
		}
		if err := json.NewEncoder(w).Encode(page); err != nil {
			t.Fatal(err)
		}
	}

	mux.HandleFunc("/api/v3/search", func(w http.ResponseWriter, r *http.Request) {
		requests++
		idx := 0
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &idx)
		}
		writePage(w, idx)
	})

	srv = httptest.NewServer(mux)
	return srv, &requests
}

func TestResultIterConcatenatesPages(t *testing.T) {
	pages := [][]string{
		{"a", "b", "c"},
		{"d"},
		{"e", "f"},
	}
	srv, requests := pagedServer(t, pages)
	defer srv.Close()

	c := New(srv.URL, "test-agent")
	it := c.Search(SearchRequest{Query: "water", Collection: CollectionDataset, OpenData: true})

	var got []string
	for it.Next() {
		got = append(got, it.Record().ID)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "b", "c", "d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("got %d records (%v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if *requests != len(pages) {
		t.Errorf("made %d page requests, want %d", *requests, len(pages))
	}
	// Exhausted iterators stay exhausted.
	if it.Next() {
		t.Error("Next returned true after exhaustion")
	}
}

func TestResultIterEmptyMiddlePage(t *testing.T) {
	srv, _ := pagedServer(t, [][]string{{"a"}, {}, {"b"}})
	defer srv.Close()

	c := New(srv.URL, "")
	it := c.Search(SearchRequest{Collection: CollectionDataset})

	var got []string
	for it.Next() {
		got = append(got, it.Record().ID)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
}

func TestResultIterTransportErrorTerminates(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		page := searchPage{Data: []Record{{ID: "a"}}}
		page.Meta.Next = srv.URL + "/api/v3/search?page=1"
		json.NewEncoder(w).Encode(page)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "")
	it := c.Search(SearchRequest{Collection: CollectionDataset})

	var got []string
	for it.Next() {
		got = append(got, it.Record().ID)
	}
	if len(got) != 1 {
		t.Fatalf("got %v, want just the first page before the failure", got)
	}
	if it.Err() == nil {
		t.Fatal("expected a transport error from Err")
	}
}

func TestRecordAccessors(t *testing.T) {
	r := Record{
		ID: "abc123",
		Attributes: map[string]interface{}{
			"name": "Hydrants",
			"tags": []interface{}{"water", "infrastructure"},
			"url":  "https://data.example.org/datasets/abc123",
		},
	}
	if r.Name() != "Hydrants" {
		t.Errorf("Name = %q", r.Name())
	}
	if tags := r.Tags(); len(tags) != 2 || tags[0] != "water" {
		t.Errorf("Tags = %v", tags)
	}
	if r.URL() != "https://data.example.org/datasets/abc123" {
		t.Errorf("URL = %q", r.URL())
	}

	bare := Record{ID: "noname", Attributes: map[string]interface{}{}}
	if bare.Name() != "noname" {
		t.Errorf("Name fallback = %q, want the id", bare.Name())
	}
}
