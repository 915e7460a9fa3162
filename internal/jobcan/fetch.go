package jobcan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

// maxPages bounds a single pagination walk.
const maxPages = 10000

// Page is the envelope of every paginated list endpoint.
type Page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// apiErrorBody is the error envelope accompanying 4xx responses.
type apiErrorBody struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
}

// classifyStatus converts a non-200 response into a retryable warning.
//
//	400 + code 400003  invalid parameter
//	400 + code 400100  invalid JSON shape
//	400 + code 400900  identity sync failed
//	404                not found
//	500 and anything else  unexpected
//
// Detail fetches use the form-detail warning kinds, which collapse the
// 400-code split into unexpected (the code is kept as an argument).
func classifyStatus(apiType APIType, status int, body []byte) *dierr.Warning {
	var envelope apiErrorBody
	_ = json.Unmarshal(body, &envelope)

	detail := apiType.IsDetail()
	warn := func(kind dierr.Kind) *dierr.Warning {
		w := dierr.NewWarning(kind).
			With("api_type", string(apiType)).
			With("status", strconv.Itoa(status))
		if envelope.Code != 0 {
			w = w.With("code", strconv.Itoa(envelope.Code))
		}
		return w
	}

	switch {
	case status == http.StatusBadRequest && envelope.Code == 400003:
		if detail {
			return warn(dierr.FormDetailApiInvalidParameter)
		}
		return warn(dierr.ApiInvalidParameter)
	case status == http.StatusBadRequest && envelope.Code == 400100:
		if detail {
			return warn(dierr.FormDetailApiUnexpected)
		}
		return warn(dierr.ApiInvalidJsonFormat)
	case status == http.StatusBadRequest && envelope.Code == 400900:
		if detail {
			return warn(dierr.FormDetailApiUnexpected)
		}
		return warn(dierr.ApiCommonIdSyncFailed)
	case status == http.StatusNotFound:
		if detail {
			return warn(dierr.FormDetailApiDataNotFound)
		}
		return warn(dierr.ApiDataNotFound)
	default:
		if detail {
			return warn(dierr.FormDetailApiUnexpected)
		}
		return warn(dierr.ApiUnexpected)
	}
}

// FetchListPage fetches one list page. A non-nil warning means the page
// is retryable; a non-nil error is fatal.
func (c *Client) FetchListPage(ctx context.Context, apiType APIType, urlStr string) ([]byte, *Page, *dierr.Warning, error) {
	status, body, fatal := c.doGet(ctx, urlStr, c.listTimeout)
	if fatal != nil {
		return nil, nil, nil, fatal
	}
	if status != http.StatusOK {
		return nil, nil, classifyStatus(apiType, status, body), nil
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, nil, dierr.NewWarning(dierr.ApiResponseJsonDecodeError).
			With("api_type", string(apiType)).
			With("error", err.Error()), nil
	}
	return body, &page, nil, nil
}

// FetchRequestDetail fetches one full request document. Warnings carry
// the request_id so failure records can name the item.
func (c *Client) FetchRequestDetail(ctx context.Context, requestID string) ([]byte, *dierr.Warning, error) {
	urlStr := c.buildURL(DetailPath(requestID), nil)
	status, body, fatal := c.doGet(ctx, urlStr, c.timeout)
	if fatal != nil {
		return nil, nil, fatal
	}
	if status != http.StatusOK {
		return nil, classifyStatus(RequestDetail, status, body).With("request_id", requestID), nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, dierr.NewWarning(dierr.ApiResponseJsonDecodeError).
			With("api_type", string(RequestDetail)).
			With("request_id", requestID).
			With("error", err.Error()), nil
	}
	return body, nil, nil
}

// Paginate walks a paginated endpoint following each page's next link.
// Successful pages go to onPage in order; a retryable page failure is
// surfaced through onWarning and ends the walk, since a failed page
// carries no next link. The clean flag is false in that case so the
// caller can mark the endpoint for refetch on the next run.
func (c *Client) Paginate(ctx context.Context, apiType APIType, params map[string]string, onPage func(pageNo int, body []byte, page *Page) error, onWarning func(*dierr.Warning)) (clean bool, err error) {
	urlStr := c.buildURL(apiType.Endpoint(), params)

	for pageNo := 1; pageNo <= maxPages; pageNo++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		body, page, warn, err := c.FetchListPage(ctx, apiType, urlStr)
		if err != nil {
			return false, err
		}
		if warn != nil {
			if onWarning != nil {
				onWarning(warn.With("page", strconv.Itoa(pageNo)))
			}
			return false, nil
		}

		c.Metrics.Page(ctx, string(apiType), len(page.Results))
		if onPage != nil {
			if err := onPage(pageNo, body, page); err != nil {
				return false, err
			}
		}

		if page.Next == nil || *page.Next == "" {
			return true, nil
		}
		urlStr = c.resolveNext(*page.Next)
	}
	return false, fmt.Errorf("pagination limit exceeded: stopped after %d pages", maxPages)
}

func itoa(i int) string { return strconv.Itoa(i) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
