// Package hub implements a client for an ArcGIS-Hub-style open data catalog.
//
// The catalog models dataset exports as long-running server-side jobs: a
// client requests an export in a target format, the job moves through status
// states, and the content link only appears once the job is ready. The client
// here is a thin, straight-through HTTP layer; all orchestration (staleness
// decisions, polling cadence) lives in the fetcher package.
package hub

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jmcarp/arcgis-hub-cli/job"
)

// DefaultURL is the public ArcGIS Hub search endpoint root.
const DefaultURL = "https://opendata.arcgis.com"

// Based on http.DefaultTransport
//
// See https://golang.org/pkg/net/http/#RoundTripper
var httpTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   4 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	// Allow a single server-initiated renegotiation attempt; some content
	// CDNs behind hub sites still require it.
	TLSClientConfig: &tls.Config{Renegotiation: tls.RenegotiateOnceAsClient},
}

// Client talks to one catalog service root.
type Client struct {
	// BaseURL is the catalog service root, without a trailing slash.
	BaseURL string

	// The User-Agent to send with every request.
	UserAgent string

	// HTTPClient used for API calls. Content downloads use it too; its
	// timeout must accommodate large export streams.
	HTTPClient *http.Client
}

// New returns a Client for the catalog rooted at baseURL. An empty baseURL
// selects the public hub.
func New(baseURL, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		HTTPClient: &http.Client{
			Transport: httpTransport,
		},
	}
}

// GetDataset fetches a single dataset record by id.
func (c *Client) GetDataset(id string) (*Record, error) {
	var env struct {
		Data Record `json:"data"`
	}
	err := c.getJSON(fmt.Sprintf("%s/api/v3/datasets/%s", c.BaseURL, id), &env)
	if err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetDownloads fetches the current export job for a dataset+format pair.
// A (nil, nil) return means no export exists for the dataset, which is a
// valid outcome and not an error.
func (c *Client) GetDownloads(datasetID, format string) (*job.Download, error) {
	var env downloadsEnvelope
	url := fmt.Sprintf("%s/api/v3/datasets/%s/downloads?formats=%s", c.BaseURL, datasetID, format)
	if err := c.getJSON(url, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	return env.Data[0].download(format)
}

// TriggerDownload asks the service to (re)generate the export for a
// dataset+format pair. The service only acknowledges acceptance; progress is
// observed by re-fetching the job via GetDownloads.
func (c *Client) TriggerDownload(datasetID, format, spatialRefID string) error {
	body, err := json.Marshal(map[string]string{
		"format":       format,
		"spatialRefId": spatialRefID,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v3/datasets/%s/downloads", c.BaseURL, datasetID)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	// No meaningful body beyond acceptance.
	resp.Body.Close()
	return nil
}

// FetchContent opens a stream to a ready export's content link. The caller
// owns the returned body and must close it.
func (c *Client) FetchContent(url string) (io.ReadCloser, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// do performs req, treating any non-2xx response as an error. Errors at this
// level are transport errors: fatal to the operation in progress.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: received status %s", req.Method, req.URL, resp.Status)
	}
	return resp, nil
}

func (c *Client) getJSON(url string, dst interface{}) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("GET %s: decoding response: %v", url, err)
	}
	return nil
}

type downloadsEnvelope struct {
	Data []downloadResource `json:"data"`
}

type downloadResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Status       string `json:"status"`
		LastModified string `json:"lastModified"`
		ContentURL   string `json:"contentUrl"`
		SpatialRefID string `json:"spatialRefId"`
		Format       string `json:"format"`
	} `json:"attributes"`
}

func (r downloadResource) download(format string) (*job.Download, error) {
	d := &job.Download{
		ID:           r.ID,
		Status:       job.Status(r.Attributes.Status),
		ContentURL:   r.Attributes.ContentURL,
		SpatialRefID: r.Attributes.SpatialRefID,
		Format:       r.Attributes.Format,
	}
	if d.Format == "" {
		d.Format = format
	}
	if r.Attributes.LastModified != "" {
		t, err := time.Parse(time.RFC3339, r.Attributes.LastModified)
		if err != nil {
			return nil, fmt.Errorf("download %s: parsing lastModified: %v", r.ID, err)
		}
		d.LastModified = t
	}
	return d, nil
}
