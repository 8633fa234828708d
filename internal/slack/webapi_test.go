package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostMessage(t *testing.T) {
	var gotAuth, gotChannel, gotText string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		gotChannel = body["channel"]
		gotText = body["text"]

		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewWebClient("xoxb-test", testLogger(), WithWebAPIURL(srv.URL))
	if err := c.PostMessage(context.Background(), "C123", "*hi*"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	if gotAuth != "Bearer xoxb-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotChannel != "C123" || gotText != "*hi*" {
		t.Errorf("posted (%q, %q), want (C123, *hi*)", gotChannel, gotText)
	}
}

func TestPostMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	c := NewWebClient("xoxb-test", testLogger(), WithWebAPIURL(srv.URL))
	err := c.PostMessage(context.Background(), "C404", "hi")
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("err = %v, want channel_not_found", err)
	}
}

func TestAuthTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth.test" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"ok":true,"user_id":"UBOT1"}`)
	}))
	defer srv.Close()

	c := NewWebClient("xoxb-test", testLogger(), WithWebAPIURL(srv.URL))
	userID, err := c.AuthTest(context.Background())
	if err != nil {
		t.Fatalf("AuthTest: %v", err)
	}
	if userID != "UBOT1" {
		t.Errorf("userID = %q, want UBOT1", userID)
	}
}
