// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
	"github.com/tomtom215/smsarchive/internal/models"
)

type messagePage struct {
	Records []models.Message `json:"records"`
	Paging  struct {
		Page       int `json:"page"`
		TotalPages int `json:"totalPages"`
		PerPage    int `json:"perPage"`
	} `json:"paging"`
	Navigation struct {
		NextPage *struct {
			URI string `json:"uri"`
		} `json:"nextPage"`
	} `json:"navigation"`
}

// hasMore decides whether another page should be requested.
func (p *messagePage) hasMore(page, perPage int) bool {
	if len(p.Records) < perPage {
		return false
	}
	if p.Paging.TotalPages > 0 {
		return page < p.Paging.TotalPages
	}
	return p.Navigation.NextPage != nil
}

// FetchResult is the outcome of listing the message store.
type FetchResult struct {
	// Messages in provider page order. Duplicates are possible.
	Messages []models.Message
	Pages    int
	// Partial is set when listing stopped early; Err holds the cause.
	Partial bool
	Err     error
}

// FetchAllMessages lists every SMS created in the last daysBack days.
//
// A 429 response waits RateLimitWait and retries the same page. Any other
// failure stops pagination and returns what was collected so far with
// Partial set. Only context cancellation is returned as an error.
func (c *Client) FetchAllMessages(ctx context.Context, daysBack int) (*FetchResult, error) {
	dateFrom := c.now().UTC().AddDate(0, 0, -daysBack)
	perPage := c.cfg.PageSize
	result := &FetchResult{}

	page := 1
	throttled := 0
	reauthed := false
	for {
		p, err := c.listPage(ctx, dateFrom, page, perPage)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			var se *StatusError
			if errors.As(err, &se) && se.IsRateLimit() && throttled < c.cfg.MaxRateLimitRetries {
				throttled++
				metrics.ProviderThrottleWaits.WithLabelValues("rate_limited").Inc()
				logging.Ctx(ctx).Warn().Int("page", page).Int("attempt", throttled).Dur("wait", c.cfg.RateLimitWait).Msg("Provider rate limited message listing, waiting")
				if err := c.sleep(ctx, c.cfg.RateLimitWait); err != nil {
					return result, err
				}
				continue
			}
			if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized && !reauthed {
				reauthed = true
				c.tokens.Invalidate()
				logging.Ctx(ctx).Warn().Int("page", page).Msg("Access token rejected, refreshing")
				continue
			}

			result.Partial = true
			result.Err = fmt.Errorf("message listing stopped at page %d: %w", page, err)
			logging.Ctx(ctx).Error().Err(err).Int("page", page).Int("collected", len(result.Messages)).Msg("Message listing stopped early")
			return result, nil
		}

		throttled = 0
		result.Messages = append(result.Messages, p.Records...)
		result.Pages++
		logging.Ctx(ctx).Debug().Int("page", page).Int("records", len(p.Records)).Int("total", len(result.Messages)).Msg("Fetched message page")

		if !p.hasMore(page, perPage) {
			break
		}
		page++
		if err := c.sleep(ctx, c.cfg.PageDelay); err != nil {
			return result, err
		}
	}

	logging.Ctx(ctx).Info().Int("messages", len(result.Messages)).Int("pages", result.Pages).Int("days_back", daysBack).Msg("Fetched messages from provider")
	return result, nil
}

func (c *Client) listPage(ctx context.Context, dateFrom time.Time, page, perPage int) (*messagePage, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("messageType", "SMS")
	q.Set("dateFrom", dateFrom.Format("2006-01-02T15:04:05.000Z"))
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))

	resp, err := c.do(ctx, "message-store", c.bearerGet(c.baseURL+messageStorePath+"?"+q.Encode(), token, "application/json"), maxJSONBodySize)
	if err != nil {
		return nil, err
	}

	var p messagePage
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode message page %d: %w", page, err)
	}
	return &p, nil
}

// GetMessage fetches a single message by id.
func (c *Client) GetMessage(ctx context.Context, id models.ProviderID) (*models.Message, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	uri := c.baseURL + messageStorePath + "/" + url.PathEscape(string(id))
	resp, err := c.do(ctx, "message", c.bearerGet(uri, token, "application/json"), maxJSONBodySize)
	if err != nil {
		return nil, err
	}

	var m models.Message
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return &m, nil
}

// Content is a downloaded attachment body.
type Content struct {
	Data        []byte
	ContentType string
}

// DownloadContent fetches raw attachment bytes from uri with the given token.
func (c *Client) DownloadContent(ctx context.Context, uri, token string) (*Content, error) {
	resp, err := c.do(ctx, "content", c.bearerGet(uri, token, ""), c.maxContentBytes)
	if err != nil {
		return nil, err
	}
	return &Content{Data: resp.Body, ContentType: resp.Header.Get("Content-Type")}, nil
}
