package tools

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

func mockScrapeResponse(status int, contentType, body string) func(string) (*http.Response, error) {
	return func(url string) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{contentType}},
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func TestScrapeProductPage_ExtractsContent(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()
	httpGet = mockScrapeResponse(200, "text/html", `<!doctype html><html><head><title>Linen Blazer</title></head>
<body><article><h1>Linen Blazer</h1><p>A relaxed-fit blazer in washed linen. Available in sand and olive.</p>
<p>Made from 100% European flax. Pairs with the matching trousers.</p></article></body></html>`)

	result, err := ScrapeProductPage(context.Background(), map[string]any{"url": "https://shop.example.com/blazer"}, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected failure: %s", result.Message)
	}
	if !strings.Contains(result.Message, "washed linen") {
		t.Errorf("extracted content missing body text: %q", result.Message)
	}
}

func TestScrapeProductPage_Truncates(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()
	long := "<html><body><p>" + strings.Repeat("fabric detail ", 500) + "</p></body></html>"
	httpGet = mockScrapeResponse(200, "text/html", long)

	result, err := ScrapeProductPage(context.Background(), map[string]any{
		"url":       "https://shop.example.com/long",
		"max_chars": float64(100),
	}, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Message, "truncated") {
		t.Error("expected truncation marker in result")
	}
}

func TestScrapeProductPage_BadInputs(t *testing.T) {
	result, err := ScrapeProductPage(context.Background(), map[string]any{"url": ""}, testContext())
	if err != nil || result.Success {
		t.Error("empty url must fail as a tool result, not an error")
	}

	result, err = ScrapeProductPage(context.Background(), map[string]any{"url": "ftp://example.com"}, testContext())
	if err != nil || result.Success {
		t.Error("non-http url must fail as a tool result, not an error")
	}
}

func TestScrapeProductPage_HTTPError(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()
	httpGet = mockScrapeResponse(404, "text/html", "not found")

	result, err := ScrapeProductPage(context.Background(), map[string]any{"url": "https://shop.example.com/gone"}, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected failed result for HTTP 404")
	}
	if !strings.Contains(result.Message, "404") {
		t.Errorf("failure should name the status, got %q", result.Message)
	}
}
