package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hession/haxu-mcp/internal/upstream"
)

func TestQuery_FollowsPages(t *testing.T) {
	var server *httptest.Server
	var calls atomic.Int32
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			if got := r.URL.Query().Get("$filter"); got != "contains(armSkuName, 'Standard_D2_v3')" {
				t.Errorf("Unexpected filter %q", got)
			}
			if got := r.URL.Query().Get("api-version"); got != DefaultAPIVersion {
				t.Errorf("Unexpected api-version %q", got)
			}
		}
		// Every page links to another one; the client must stop at the limit.
		fmt.Fprintf(w, `{"Items":[{"productName":"VM %d","skuName":"D2 v3","retailPrice":0.096,"unitOfMeasure":"1 Hour","armRegionName":"eastus"}],"NextPageLink":"%s/?page=%d"}`, n, server.URL, n+1)
	}))
	defer server.Close()

	client := New(server.URL, "", 0, upstream.New("", time.Second))
	result, err := client.Query(context.Background(), "contains(armSkuName, 'Standard_D2_v3')")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if calls.Load() != DefaultMaxPages {
		t.Errorf("Expected %d page requests, got %d", DefaultMaxPages, calls.Load())
	}
	if len(result.Items) != 3 || !result.Truncated {
		t.Fatalf("Unexpected result: %+v", result)
	}

	text := Format(result, client.MaxPages())
	if !strings.HasPrefix(text, "Found 3 pricing items (limited to 3 pages)") {
		t.Errorf("Unexpected summary: %s", text)
	}
	if !strings.Contains(text, "Price: 0.096 USD") {
		t.Errorf("Expected price line: %s", text)
	}
	if strings.Count(text, "\n\n---\n\n") != 2 {
		t.Errorf("Expected 2 separators: %s", text)
	}
}

func TestQuery_SinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Items":[{"productName":"Storage"}],"NextPageLink":null}`)
	}))
	defer server.Close()

	client := New(server.URL, "", 0, upstream.New("", time.Second))
	result, err := client.Query(context.Background(), "serviceName eq 'Storage'")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	text := Format(result, client.MaxPages())
	if text != "Found 1 pricing items (showing all)\n\nProduct: Storage" {
		t.Errorf("Unexpected text: %q", text)
	}
}

func TestQuery_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Items":[]}`)
	}))
	defer server.Close()

	client := New(server.URL, "", 0, upstream.New("", time.Second))
	_, err := client.Query(context.Background(), "x eq 'y'")
	var empty *upstream.EmptyResultError
	if !errors.As(err, &empty) {
		t.Fatalf("Expected EmptyResultError, got %v", err)
	}
}

func TestQuery_FirstPageFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "", 0, upstream.New("", time.Second))
	_, err := client.Query(context.Background(), "bad filter")
	var upErr *upstream.Error
	if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 upstream error, got %v", err)
	}
}

func TestEscapeFilter(t *testing.T) {
	got := escapeFilter("a eq 'b&c'")
	if got != "a%20eq%20%27b%26c%27" {
		t.Errorf("Unexpected escape: %s", got)
	}
}
