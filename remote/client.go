// Package remote defines the authoritative store contract and a JSON over
// HTTP client for the POS backend.
// Basic Usage sample:
//
//	Create a new client and set the base url for the service
//	client := remote.NewClient("https://example.com")
//	client.SetAccessToken(token)
//
//	rec, err := client.Create(ctx, "order", orderID, payload, writeToken)
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tillpoint/pos-lib/e"
)

const (
	// DefaultPath is the default path to the sync record service
	DefaultPath = "/services/"
	// DefaultVersion is the default version number to use in the request
	DefaultVersion = 1
	// DefaultID is the default id number to use in the request
	DefaultID = 0

	// Actions on the sync record service
	ActionRecordCreate = "pos.sync.Record.create"
	ActionRecordUpdate = "pos.sync.Record.update"
	ActionRecordDelete = "pos.sync.Record.delete"
	ActionRecordGet    = "pos.sync.Record.get"

	ECode0A0101 = e.Code0A01 + "01"
	ECode0A0102 = e.Code0A01 + "02"
	ECode0A0103 = e.Code0A01 + "03"
	ECode0A0104 = e.Code0A01 + "04"
	ECode0A0105 = e.Code0A01 + "05"
	ECode0A0106 = e.Code0A01 + "06"
	ECode0A0107 = e.Code0A01 + "07"
	ECode0A0108 = e.Code0A01 + "08"
	ECode0A0109 = e.Code0A01 + "09"
	ECode0A010A = e.Code0A01 + "0A"
	ECode0A010B = e.Code0A01 + "0B"
)

// These constants refer to error codes that come from a backend sync
// record API call (not within this library)
const (
	E02SVC_VersionConflict    = "E02SVC" // Stored version is newer than base version
	E02SDE_RecordDNE          = "E02SDE" // Record does not exist
	E02SVR_ValidationRejected = "E02SVR" // Payload failed validation
)

// RequestList formats a request to send to the backend API server
type RequestList struct {
	Format      string         `json:"format"`
	Version     int            `json:"version"`
	ID          int            `json:"id"`
	Requests    []*RequestItem `json:"requests"`
	AccessToken string         `json:"accessToken,omitempty"`
}

// RequestItem is an item from a RequestList
type RequestItem struct {
	Service string        `json:"service"`
	Action  string        `json:"action"`
	Params  []interface{} `json:"params"`
}

// ResponseList represents the backend service response
type ResponseList struct {
	ID        int        `json:"id"`
	Success   bool       `json:"success"`
	Responses []Response `json:"responses"`
	Message   string     `json:"message"`
	Code      int        `json:"code"`
}

// Response represents a single response item from the backend
type Response struct {
	ID        int             `json:"id"`
	Success   bool            `json:"success"`
	Code      int             `json:"code"`
	ErrorCode string          `json:"errorCode"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Errors    []string        `json:"errors"`
}

// Client handles posting sync record requests to the backend API server.
// It implements Store.
type Client struct {
	BaseURL     string
	Path        string
	Version     int
	ID          int
	accessToken string
	httpClient  *http.Client
}

// NewClient returns a new client to handle requests to the sync record service
func NewClient(url string) (c *Client) {
	return &Client{
		BaseURL:    url,
		Path:       DefaultPath,
		Version:    DefaultVersion,
		ID:         DefaultID,
		httpClient: &http.Client{},
	}
}

// SetBaseURL sets the base URL to the sync record service
func (c *Client) SetBaseURL(url string) {
	c.BaseURL = url
}

// SetPath sets the path to the sync record service
func (c *Client) SetPath(path string) {
	if len(path) == 0 {
		c.Path = DefaultPath
	} else {
		c.Path = path
	}
}

// SetAccessToken sets the authentication token to use
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// SetHTTPClient overrides the underlying http client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Create stores a new record on the backend
func (c *Client) Create(ctx context.Context, entityType, entityID string,
	payload json.RawMessage, writeToken string) (r *Record, err error) {

	res, err := c.send(ctx, &RequestItem{
		Service: entityType,
		Action:  ActionRecordCreate,
		Params:  []interface{}{entityID, payload, writeToken},
	})
	if err != nil {
		return nil, e.W(err, ECode0A0101)
	}

	r = &Record{}
	if err := json.Unmarshal(res.Data, r); err != nil {
		return nil, e.W(err, ECode0A0102)
	}

	return r, nil
}

// Update replaces a record on the backend if baseVersion still matches
func (c *Client) Update(ctx context.Context, entityType, entityID string,
	payload json.RawMessage, baseVersion int, writeToken string) (r *Record, err error) {

	res, err := c.send(ctx, &RequestItem{
		Service: entityType,
		Action:  ActionRecordUpdate,
		Params:  []interface{}{entityID, payload, baseVersion, writeToken},
	})
	if err != nil {
		return nil, e.W(err, ECode0A0103)
	}

	r = &Record{}
	if err := json.Unmarshal(res.Data, r); err != nil {
		return nil, e.W(err, ECode0A0104)
	}

	return r, nil
}

// Delete removes a record on the backend if baseVersion still matches
func (c *Client) Delete(ctx context.Context, entityType, entityID string,
	baseVersion int) (err error) {

	if _, err := c.send(ctx, &RequestItem{
		Service: entityType,
		Action:  ActionRecordDelete,
		Params:  []interface{}{entityID, baseVersion},
	}); err != nil {
		return e.W(err, ECode0A0105)
	}

	return nil
}

// FetchCurrent returns the stored record for the entity
func (c *Client) FetchCurrent(ctx context.Context, entityType,
	entityID string) (r *Record, err error) {

	res, err := c.send(ctx, &RequestItem{
		Service: entityType,
		Action:  ActionRecordGet,
		Params:  []interface{}{entityID},
	})
	if err != nil {
		return nil, e.W(err, ECode0A0106)
	}

	r = &Record{}
	if err := json.Unmarshal(res.Data, r); err != nil {
		return nil, e.W(err, ECode0A0107)
	}

	return r, nil
}

// send posts a single request item to the backend and returns its response
func (c *Client) send(ctx context.Context, ri *RequestItem) (res *Response, err error) {
	reqList := &RequestList{
		Format:      "json",
		Version:     c.Version,
		ID:          c.ID,
		Requests:    []*RequestItem{ri},
		AccessToken: c.accessToken,
	}

	payload := new(bytes.Buffer)
	if err := json.NewEncoder(payload).Encode(reqList); err != nil {
		return nil, e.W(err, ECode0A0108)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.getServiceURL(), payload)
	if err != nil {
		return nil, e.W(err, ECode0A0109)
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		return nil, e.W(err, ECode0A010A, e.MsgRemoteUnavailable)
	}
	defer httpRes.Body.Close()

	body := &ResponseList{}
	if err := json.NewDecoder(httpRes.Body).Decode(body); err != nil {
		return nil, e.W(err, ECode0A010B, e.MsgRemoteUnavailable)
	}

	return body.responseErrors(ri)
}

// getServiceURL returns the full url to post the request to
func (c *Client) getServiceURL() string {
	return fmt.Sprintf("%s%s", c.BaseURL, c.Path)
}

// responseErrors returns the single response, or an error classified from
// the backend error code if the call did not succeed
func (rl *ResponseList) responseErrors(ri *RequestItem) (res *Response, err error) {
	if !rl.Success || len(rl.Responses) != 1 {
		return nil, e.N(ECode0A0101,
			fmt.Sprintf("%s %s failed: %s", ri.Service, ri.Action, e.MsgRemoteUnavailable))
	}

	res = &Response{}
	*res = rl.Responses[0]
	if res.Success {
		return res, nil
	}

	switch res.ErrorCode {
	case E02SVC_VersionConflict:
		err = e.N(ECode0A0102, e.MsgRemoteVersionStale)
	case E02SDE_RecordDNE:
		err = e.N(ECode0A0103, e.MsgRemoteRecordDNE)
	case E02SVR_ValidationRejected:
		err = e.N(ECode0A0104, e.MsgRemoteRejected)
	default:
		err = e.N(ECode0A0105,
			fmt.Sprintf("%s: %s %s", e.MsgRemoteUnavailable, res.ErrorCode, res.Message))
	}

	return nil, err
}
