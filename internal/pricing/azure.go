// Package pricing queries the Azure Retail Prices API.
package pricing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hession/haxu-mcp/internal/upstream"
)

const (
	DefaultBaseURL    = "https://prices.azure.com/api/retail/prices"
	DefaultAPIVersion = "2023-01-01-preview"
	DefaultMaxPages   = 3
	service           = "azure pricing"
)

// Item is one retail price entry. Pointer fields distinguish absent keys.
type Item struct {
	ProductName   *string  `json:"productName"`
	SkuName       *string  `json:"skuName"`
	RetailPrice   *float64 `json:"retailPrice"`
	UnitOfMeasure *string  `json:"unitOfMeasure"`
	ArmRegionName *string  `json:"armRegionName"`
}

type page struct {
	Items        []Item `json:"Items"`
	NextPageLink string `json:"NextPageLink"`
}

// Result collects the items of every fetched page.
type Result struct {
	Items     []Item
	Pages     int
	Truncated bool // more pages existed beyond the page limit
}

// Client is an Azure retail prices client.
type Client struct {
	baseURL    string
	apiVersion string
	maxPages   int
	http       *upstream.Client
}

// New creates a pricing client on top of a shared upstream client.
func New(baseURL, apiVersion string, maxPages int, http *upstream.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = DefaultAPIVersion
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		maxPages:   maxPages,
		http:       http,
	}
}

// MaxPages returns the page limit.
func (c *Client) MaxPages() int {
	return c.maxPages
}

// Query runs an OData filter expression and follows NextPageLink up to the
// page limit. A failing page ends pagination with the items collected so far.
func (c *Client) Query(ctx context.Context, filter string) (Result, error) {
	if strings.TrimSpace(filter) == "" {
		return Result{}, fmt.Errorf("filter expression cannot be empty")
	}

	next := fmt.Sprintf("%s?api-version=%s&$filter=%s", c.baseURL, url.QueryEscape(c.apiVersion), escapeFilter(filter))
	headers := map[string]string{"Accept": "application/json"}

	var result Result
	var lastErr error
	for next != "" && result.Pages < c.maxPages {
		result.Pages++
		var p page
		if err := c.http.GetJSON(ctx, service, next, headers, &p); err != nil {
			lastErr = err
			next = ""
			break
		}
		result.Items = append(result.Items, p.Items...)
		next = p.NextPageLink
	}
	result.Truncated = next != "" && result.Pages >= c.maxPages

	if len(result.Items) == 0 {
		if lastErr != nil {
			return Result{}, lastErr
		}
		return Result{}, upstream.Empty("Unable to fetch Azure price data for this filter expression or no results found.")
	}
	return result, nil
}

// escapeFilter percent-encodes an OData expression, spaces as %20.
func escapeFilter(filter string) string {
	return strings.ReplaceAll(url.QueryEscape(filter), "+", "%20")
}

// Format renders a query result as text.
func Format(result Result, maxPages int) string {
	prices := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		var info []string
		if item.ProductName != nil {
			info = append(info, "Product: "+*item.ProductName)
		}
		if item.SkuName != nil {
			info = append(info, "SKU: "+*item.SkuName)
		}
		if item.RetailPrice != nil {
			info = append(info, fmt.Sprintf("Price: %v USD", *item.RetailPrice))
		}
		if item.UnitOfMeasure != nil {
			info = append(info, "Per: "+*item.UnitOfMeasure)
		}
		if item.ArmRegionName != nil {
			info = append(info, "Region: "+*item.ArmRegionName)
		}
		prices = append(prices, strings.Join(info, "\n"))
	}

	summary := fmt.Sprintf("Found %d pricing items (showing all)", len(result.Items))
	if result.Truncated {
		summary = fmt.Sprintf("Found %d pricing items (limited to %d pages)", len(result.Items), maxPages)
	}
	return summary + "\n\n" + strings.Join(prices, "\n\n---\n\n")
}
