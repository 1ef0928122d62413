package nomi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testID = "3d1e4b5a-7f2c-4d8e-9a6b-1c2d3e4f5a6b"

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
}

func TestSendMessage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/nomis/"+testID+"/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body.MessageText != "hello" {
			t.Errorf("messageText = %q", body.MessageText)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sentMessage":{"uuid":"s1","text":"hello","sent":"2024-05-01T10:00:00Z"},` +
			`"replyMessage":{"uuid":"r1","text":"hi @alice","sent":"2024-05-01T10:00:02Z"}}`))
	})

	sent, reply, err := c.SendMessage(context.Background(), testID, "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent.Text != "hello" || reply.Text != "hi @alice" {
		t.Errorf("sent=%q reply=%q", sent.Text, reply.Text)
	}
	if reply.Sent.IsZero() {
		t.Error("reply timestamp not decoded")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
		wantMsg  string
	}{
		{"typed error", http.StatusNotFound, `{"error":{"type":"NomiNotFound"}}`, "NomiNotFound", "nomi api: NomiNotFound (HTTP 404)"},
		{"typed error with message", http.StatusBadRequest, `{"error":{"type":"InvalidContentType","message":"bad"}}`, "InvalidContentType", "nomi api: InvalidContentType: bad (HTTP 400)"},
		{"plain body", http.StatusBadGateway, "upstream down", "", "nomi api: upstream down (HTTP 502)"},
		{"empty body", http.StatusInternalServerError, "", "", "nomi api: HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, _, err := c.SendMessage(context.Background(), testID, "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Type != tt.wantType {
				t.Errorf("got status=%d type=%q", apiErr.StatusCode, apiErr.Type)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestListNomis(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nomis" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"nomis":[{"uuid":"` + testID + `","name":"Aria","gender":"Female","created":"2024-01-01T00:00:00Z","relationshipType":"Friend"}]}`))
	})

	nomis, err := c.ListNomis(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(nomis) != 1 || nomis[0].Name != "Aria" || nomis[0].RelationshipType != "Friend" {
		t.Errorf("nomis = %+v", nomis)
	}
}

func TestFromUUID(t *testing.T) {
	t.Run("invalid uuid rejected before any request", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		})
		if _, err := FromUUID(context.Background(), c, "not-a-uuid"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown nomi", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"type":"NomiNotFound"}}`))
		})
		_, err := FromUUID(context.Background(), c, testID)
		if !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("resolved agent sends messages", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/nomis/" + testID:
				w.Write([]byte(`{"uuid":"` + testID + `","name":"Aria","created":"2024-01-01T00:00:00Z"}`))
			case "/nomis/" + testID + "/chat":
				w.Write([]byte(`{"sentMessage":{"text":"q"},"replyMessage":{"text":"answer"}}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		})

		agent, err := FromUUID(context.Background(), c, testID)
		if err != nil {
			t.Fatalf("FromUUID: %v", err)
		}
		if agent.Nomi().Name != "Aria" {
			t.Errorf("name = %q", agent.Nomi().Name)
		}
		reply, err := agent.SendMessage(context.Background(), "q")
		if err != nil || reply != "answer" {
			t.Errorf("SendMessage = %q, %v", reply, err)
		}
	})
}

func TestSendMessage_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewClient("k", WithBaseURL(srv.URL))
	srv.Close()

	if _, _, err := c.SendMessage(context.Background(), testID, "x"); err == nil {
		t.Fatal("expected transport error")
	}
}
