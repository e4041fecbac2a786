package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/exception"
)

const (
	moduleQuery    = "store_query"
	moduleMetadata = "store_metadata"
)

// Page is one page of query results together with the continuation token for
// the next page. An empty NextPageToken means the result set is exhausted.
type Page struct {
	Records       []*domain.Record
	NextPageToken string
}

// Client issues queries and metadata requests against the endpoint carried by
// an authenticated Session.
type Client struct {
	session *Session
	client  *http.Client
}

// NewClient creates a query client bound to the given Session.
//
// Parameters:
//
//	session: An authenticated Session holding the token and endpoint.
//	timeout: The per-request HTTP timeout.
func NewClient(session *Session, timeout time.Duration) *Client {
	return &Client{
		session: session,
		client:  &http.Client{Timeout: timeout},
	}
}

// queryRequest is the wire shape of a filter query.
type queryRequest struct {
	Object string   `json:"object"`
	Fields []string `json:"fields"`
	Filter struct {
		Field  string   `json:"field"`
		Values []string `json:"values"`
	} `json:"filter"`
	OrderBy  string `json:"order_by"`
	PageSize int    `json:"page_size"`
}

// queryResponse is the wire shape of one page of query results.
type queryResponse struct {
	Records       []map[string]any `json:"records"`
	NextPageToken string           `json:"next_page_token"`
}

// describeRequest is the wire shape of a field metadata lookup.
type describeRequest struct {
	Object string   `json:"object"`
	Fields []string `json:"fields"`
}

// describeResponse is the wire shape of a field metadata result.
type describeResponse struct {
	Fields []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	} `json:"fields"`
}

// Query starts a filter query for one chunk of values and returns the first
// page of results. Results are ordered by record id so pagination is stable.
//
// Parameters:
//
//	ctx: The context for the request.
//	object: The record type to query.
//	fields: The field names to select (record id is always returned).
//	filterField: The field the filter values match against.
//	values: One chunk of filter values.
//	pageSize: The maximum number of records per page.
//
// Returns:
//
//	*Page: The first page of results.
//	error: A BatchError if the query fails; retryable for server-side errors.
func (c *Client) Query(ctx context.Context, object string, fields []string, filterField string, values []string, pageSize int) (*Page, error) {
	reqBody := queryRequest{
		Object:   object,
		Fields:   fields,
		OrderBy:  "id",
		PageSize: pageSize,
	}
	reqBody.Filter.Field = filterField
	reqBody.Filter.Values = values

	return c.postQuery(ctx, c.session.Endpoint+"/query", reqBody)
}

// QueryPage fetches the next page of a running query by continuation token.
//
// Parameters:
//
//	ctx: The context for the request.
//	token: The continuation token from the previous page.
//
// Returns:
//
//	*Page: The next page of results.
//	error: A BatchError if the fetch fails; retryable for server-side errors.
func (c *Client) QueryPage(ctx context.Context, token string) (*Page, error) {
	url := fmt.Sprintf("%s/query/pages/%s", c.session.Endpoint, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, exception.NewBatchError(moduleQuery, "Failed to create page request", err, false, false)
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, exception.NewBatchError(moduleQuery, "Page request failed", wrapSentinel(exception.ErrNetwork, err), false, true)
	}
	defer resp.Body.Close()

	return c.decodePage(resp)
}

// DescribeFields looks up the display labels of the given fields.
//
// Parameters:
//
//	ctx: The context for the request.
//	object: The record type the fields belong to.
//	fields: The field names to describe.
//
// Returns:
//
//	map[string]string: Field name to display label.
//	error: A BatchError if the lookup fails; retryable for server-side errors.
func (c *Client) DescribeFields(ctx context.Context, object string, fields []string) (map[string]string, error) {
	body, err := json.Marshal(describeRequest{Object: object, Fields: fields})
	if err != nil {
		return nil, exception.NewBatchError(moduleMetadata, "Failed to encode describe request", err, false, false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.Endpoint+"/describe", bytes.NewReader(body))
	if err != nil {
		return nil, exception.NewBatchError(moduleMetadata, "Failed to create describe request", err, false, false)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, exception.NewBatchError(moduleMetadata, "Describe request failed", wrapSentinel(exception.ErrNetwork, err), false, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		bodyString := strings.TrimSpace(string(bodyBytes))
		isRetryable := resp.StatusCode >= 500
		errMsg := fmt.Sprintf("Describe request returned an error: Status code %d, Body: %s", resp.StatusCode, bodyString)
		return nil, exception.NewBatchError(moduleMetadata, errMsg, exception.ErrMetadata, false, isRetryable)
	}

	var dr describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, exception.NewBatchError(moduleMetadata, "Failed to decode describe response", wrapSentinel(exception.ErrMetadata, err), false, false)
	}

	labels := make(map[string]string, len(dr.Fields))
	for _, f := range dr.Fields {
		labels[f.Name] = f.Label
	}
	return labels, nil
}

// postQuery posts a query body and decodes the resulting page.
func (c *Client) postQuery(ctx context.Context, url string, reqBody queryRequest) (*Page, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, exception.NewBatchError(moduleQuery, "Failed to encode query request", err, false, false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, exception.NewBatchError(moduleQuery, "Failed to create query request", err, false, false)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, exception.NewBatchError(moduleQuery, "Query request failed", wrapSentinel(exception.ErrNetwork, err), false, true)
	}
	defer resp.Body.Close()

	return c.decodePage(resp)
}

// decodePage turns an HTTP response into a Page, converting the generic wire
// records into domain records. The "id" key becomes the record identity; every
// other key becomes a text field, with nulls treated as empty strings.
func (c *Client) decodePage(resp *http.Response) (*Page, error) {
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		bodyString := strings.TrimSpace(string(bodyBytes))
		isRetryable := resp.StatusCode >= 500
		errMsg := fmt.Sprintf("Query returned an error: Status code %d, Body: %s", resp.StatusCode, bodyString)
		return nil, exception.NewBatchError(moduleQuery, errMsg, exception.ErrQuery, false, isRetryable)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, exception.NewBatchError(moduleQuery, "Failed to decode query response", wrapSentinel(exception.ErrQuery, err), false, false)
	}

	records := make([]*domain.Record, 0, len(qr.Records))
	for _, raw := range qr.Records {
		rec := &domain.Record{Fields: make(map[string]string, len(raw))}
		for key, value := range raw {
			text := ""
			if value != nil {
				text = fmt.Sprintf("%v", value)
			}
			if key == "id" {
				rec.ID = text
				continue
			}
			rec.Fields[key] = text
		}
		records = append(records, rec)
	}

	return &Page{Records: records, NextPageToken: qr.NextPageToken}, nil
}

// setAuth attaches the session bearer token to a request.
func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
}

// wrapSentinel pairs a registered classification sentinel with the concrete
// cause so both errors.Is checks and log output stay useful.
func wrapSentinel(sentinel, cause error) error {
	return fmt.Errorf("%w: %v", sentinel, cause)
}
