package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/config"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) outbound.LinkResolverPort {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := adapterTestLogger()
	fetcher := NewContentFetcher(logger, 5*time.Second)
	return NewLinkResolver(fetcher, &config.LinkResolverConfig{ApiUrl: server.URL}, logger)
}

func TestLinkResolver_Resolve(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resolve" {
			t.Error("unexpected path:", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"title": "Solar Desk Lamp",
			"description": "A lamp",
			"features": ["touch dimming"],
			"image_url": "https://cdn/lamp.jpg",
			"price": "39.99"
		}`))
	})

	product, err := resolver.Resolve(context.Background(), "https://shop.example/lamp")
	if err != nil {
		t.Fatal("resolve failed:", err)
	}
	if product.Title != "Solar Desk Lamp" {
		t.Fatal("unexpected title:", product.Title)
	}
	if len(product.Features) != 1 || product.Features[0] != "touch dimming" {
		t.Fatal("unexpected features:", product.Features)
	}
}

func TestLinkResolver_UnparseableLink(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"not a product page"}`))
	})

	_, err := resolver.Resolve(context.Background(), "https://shop.example/not-a-product")
	var parseErr *outbound.LinkParseError
	if !errors.As(err, &parseErr) {
		t.Fatal("expected LinkParseError, got:", err)
	}
	if parseErr.Detail != "not a product page" {
		t.Fatal("unexpected detail:", parseErr.Detail)
	}
}

func TestLinkResolver_EmptyTitleIsParseError(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":""}`))
	})

	_, err := resolver.Resolve(context.Background(), "https://shop.example/lamp")
	var parseErr *outbound.LinkParseError
	if !errors.As(err, &parseErr) {
		t.Fatal("expected LinkParseError for an empty title, got:", err)
	}
}

func TestLinkResolver_ServerErrorIsNotParseError(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := resolver.Resolve(context.Background(), "https://shop.example/lamp")
	if err == nil {
		t.Fatal("expected an error")
	}
	var parseErr *outbound.LinkParseError
	if errors.As(err, &parseErr) {
		t.Fatal("a resolver outage must not be reported as a parse failure")
	}
}
