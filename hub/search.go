package hub

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Catalog collections the search endpoint understands.
const (
	CollectionDataset = "Dataset"
	CollectionSite    = "Site"
)

// SearchRequest describes one catalog search.
type SearchRequest struct {
	// Query is the free-text search term.
	Query string

	// Collection selects the entity type, CollectionDataset or
	// CollectionSite.
	Collection string

	// OpenData restricts results to openly licensed entries.
	OpenData bool

	// Optional facets.
	Tags   []string
	Groups []string
}

// Record is a dataset or site returned by search. Attributes is the raw
// attribute bag; the typed accessors cover the fields every caller needs.
// Records are immutable once fetched.
type Record struct {
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Name returns the record's display name, or its id when the catalog
// provides none.
func (r *Record) Name() string {
	if name, ok := r.Attributes["name"].(string); ok && name != "" {
		return name
	}
	return r.ID
}

// Tags returns the record's free-text tags in catalog order.
func (r *Record) Tags() []string {
	raw, ok := r.Attributes["tags"].([]interface{})
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// URL returns the record's canonical URL, if the catalog provides one.
func (r *Record) URL() string {
	u, _ := r.Attributes["url"].(string)
	return u
}

type searchPage struct {
	Data []Record `json:"data"`
	Meta struct {
		Stats struct {
			Count int `json:"count"`
		} `json:"stats"`
		// Next is the continuation link; absent on the last page.
		Next string `json:"next"`
	} `json:"meta"`
}

// Search issues req against the catalog and returns a lazy iterator over the
// result records. The first page is fetched on the first call to Next, and
// continuation pages are fetched one at a time as the iterator crosses page
// boundaries; no more than one page is held in memory.
func (c *Client) Search(req SearchRequest) *ResultIter {
	return &ResultIter{c: c, search: req}
}

// ResultIter is a forward-only iterator over paginated search results, in
// the style of bufio.Scanner: call Next until it returns false, then check
// Err. The sequence is restartable only by issuing a new Search.
type ResultIter struct {
	c      *Client
	search SearchRequest

	started bool
	page    searchPage
	i       int
	err     error
	done    bool
}

// Next advances the iterator to the next record. It returns false when the
// results are exhausted or a transport error occurred; the two are told
// apart via Err.
func (it *ResultIter) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if !it.started {
		it.started = true
		if err := it.fetchFirst(); err != nil {
			it.err = err
			return false
		}
	}

	for it.i >= len(it.page.Data) {
		if it.page.Meta.Next == "" {
			it.done = true
			return false
		}
		if err := it.fetchNext(it.page.Meta.Next); err != nil {
			it.err = err
			return false
		}
	}
	it.i++
	return true
}

// Record returns the record Next advanced to. It is only valid after a call
// to Next that returned true.
func (it *ResultIter) Record() Record {
	return it.page.Data[it.i-1]
}

// Total returns the server-reported total result count. Valid once Next has
// been called at least once.
func (it *ResultIter) Total() int {
	return it.page.Meta.Stats.Count
}

// Err returns the transport error that terminated the sequence, if any.
// Pagination exhaustion is normal termination, not an error.
func (it *ResultIter) Err() error {
	return it.err
}

func (it *ResultIter) fetchFirst() error {
	body, err := json.Marshal(map[string]interface{}{
		"q": it.search.Query,
		"filter": map[string]interface{}{
			"openData":   it.search.OpenData,
			"collection": it.search.Collection,
			"tags":       it.search.Tags,
			"groupIds":   it.search.Groups,
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", it.c.BaseURL+"/api/v3/search", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return it.decodePage(req)
}

func (it *ResultIter) fetchNext(url string) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	return it.decodePage(req)
}

func (it *ResultIter) decodePage(req *http.Request) error {
	resp, err := it.c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Discard the previous page before decoding the new one.
	it.page = searchPage{}
	it.i = 0
	return json.NewDecoder(resp.Body).Decode(&it.page)
}
