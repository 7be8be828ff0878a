package ocr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), srv.URL, srv.URL, "test-key")
	c.PollInterval = time.Millisecond
	return c, srv
}

func TestAnalyzePollsUntilSucceeded(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-receipt:analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Operation-Location", srvURL+"/op/123")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/op/123", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 3 {
			fmt.Fprint(w, `{"status":"running"}`)
			return
		}
		fmt.Fprint(w, `{"status":"succeeded","analyzeResult":{"content":"Total $9.99","documents":[{"docType":"receiptStandard","confidence":0.9}]}}`)
	})
	c, srv := testClient(t, mux)
	srvURL = srv.URL

	res, err := c.Analyze(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Content != "Total $9.99" {
		t.Errorf("content = %q", res.Content)
	}
	if got := atomic.LoadInt32(&polls); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}
}

func TestAnalyzeStopsAfterMaxPolls(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-receipt:analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Operation-Location", srvURL+"/op/slow")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/op/slow", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"running"}`)
	})
	c, srv := testClient(t, mux)
	srvURL = srv.URL
	c.MaxPolls = 2

	if _, err := c.Analyze(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error after polls exhausted")
	}
}

func TestAnalyzeRejectsNonAccepted(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	if _, err := c.Analyze(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error for non-202 init")
	}
}

func TestClassifyTags(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Errorf("missing subscription key")
		}
		fmt.Fprint(w, `{"tags":[{"name":"Receipt"},{"name":"Paper"}]}`)
	}))
	tags, err := c.ClassifyTags(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("ClassifyTags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "receipt" || tags[1] != "paper" {
		t.Fatalf("tags = %v", tags)
	}
}

func TestAnalyzeFailsFastOnFailedStatus(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-receipt:analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Operation-Location", srvURL+"/op/bad")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/op/bad", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		fmt.Fprint(w, `{"status":"failed"}`)
	})
	c, srv := testClient(t, mux)
	srvURL = srv.URL

	if _, err := c.Analyze(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error on failed status")
	}
	if got := atomic.LoadInt32(&polls); got != 1 {
		t.Errorf("polls = %d, want 1", got)
	}
}
