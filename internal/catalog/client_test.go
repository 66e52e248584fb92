package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/articles/11":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":11,"name":"Gift Card","sku":"GC-300","price":300,"available":true,"digital":true,"stock":0}`))
		case "/api/articles/404":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	art, err := client.GetArticle(context.Background(), 11)
	if err != nil {
		t.Fatalf("GetArticle error: %v", err)
	}
	if art.Name != "Gift Card" || art.Price != 300 || !art.Digital {
		t.Fatalf("unexpected article: %+v", art)
	}

	if _, err := client.GetArticle(context.Background(), 404); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}

	if _, err := client.GetArticle(context.Background(), 500); err == nil {
		t.Fatalf("expected error for server failure")
	}
}

func TestIsVisible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/articles/11/visibility" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("user_id") == "7" {
			w.Write([]byte(`{"visible":true}`))
			return
		}
		w.Write([]byte(`{"visible":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	visible, err := client.IsVisible(context.Background(), 11, 7)
	if err != nil {
		t.Fatalf("IsVisible error: %v", err)
	}
	if !visible {
		t.Fatalf("article must be visible to user 7")
	}

	visible, err = client.IsVisible(context.Background(), 11, 8)
	if err != nil {
		t.Fatalf("IsVisible error: %v", err)
	}
	if visible {
		t.Fatalf("article must be hidden from user 8")
	}

	if _, err := client.IsVisible(context.Background(), 12, 7); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestClientNotConfigured(t *testing.T) {
	var nilClient *Client
	if _, err := nilClient.GetArticle(context.Background(), 1); err == nil {
		t.Fatalf("nil client must return an error")
	}

	empty := NewClient("")
	if _, err := empty.GetArticle(context.Background(), 1); err == nil {
		t.Fatalf("client without base URL must return an error")
	}
}
