package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{Host: srv.URL, Model: "llama3.2-vision"})
}

func TestChat_ReturnsContent(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		if req.Model != "llama3.2-vision" {
			t.Errorf("unexpected model %q", req.Model)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: Message{Role: RoleAssistant, Content: "The chart shows revenue growth."},
			Done:    true,
		})
	}))

	got, err := c.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "What does the chart show?"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "The chart shows revenue growth." {
		t.Errorf("unexpected content %q", got)
	}
}

func TestChat_ForwardsImagesAndOptions(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			t.Errorf("expected one message with one image, got %+v", req.Messages)
		}
		if req.Options == nil || req.Options.NumPredict != 300 {
			t.Errorf("expected num_predict 300, got %+v", req.Options)
		}
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "ok"}, Done: true})
	}))

	_, err := c.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "describe", Images: []string{"aGVsbG8="}},
	}, &Options{Temperature: 0.7, NumPredict: 300})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

func TestChat_APIError(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(chatResponse{Error: "model 'llama3.2-vision' not found"})
	}))

	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected model-not-found error, got %v", err)
	}
}

func TestChatStream_AssemblesFrames(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(chatResponse{Message: Message{Content: "Hello"}})
		enc.Encode(chatResponse{Message: Message{Content: ", world"}})
		enc.Encode(chatResponse{Done: true})
	}))

	var sink strings.Builder
	got, err := c.ChatStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, &sink)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("unexpected full text %q", got)
	}
	if sink.String() != "Hello, world" {
		t.Errorf("unexpected streamed text %q", sink.String())
	}
}

func TestChatStream_MidStreamError(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(chatResponse{Message: Message{Content: "partial"}})
		enc.Encode(chatResponse{Error: "out of memory"})
	}))

	got, err := c.ChatStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	if err == nil {
		t.Fatal("expected mid-stream error")
	}
	if got != "partial" {
		t.Errorf("expected partial text preserved, got %q", got)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.System == "" {
			t.Error("expected system prompt forwarded")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "a red square on white background"})
	}))

	got, err := c.Generate(context.Background(), &GenerateRequest{
		Prompt: "describe",
		System: "be brief",
		Images: []string{"aGVsbG8="},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "a red square on white background" {
		t.Errorf("unexpected response %q", got)
	}
}

func TestAnalyzeImage_EmptyDescription(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "  \n"})
	}))

	if _, err := c.AnalyzeImage(context.Background(), "aGVsbG8="); err == nil {
		t.Error("expected error for empty analysis")
	}
}

func TestEnsureModel_AlreadyInstalled(t *testing.T) {
	t.Parallel()
	pulled := false
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]string{{"name": "llama3.2-vision:latest"}},
			})
		case "/api/pull":
			pulled = true
			json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		}
	}))

	if err := c.EnsureModel(context.Background()); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if pulled {
		t.Error("should not pull an installed model")
	}
}

func TestEnsureModel_PullsMissingModel(t *testing.T) {
	t.Parallel()
	pulled := false
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{"models": []map[string]string{}})
		case "/api/pull":
			pulled = true
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			if req["name"] != "llama3.2-vision" {
				t.Errorf("unexpected pull target %v", req["name"])
			}
			json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		}
	}))

	if err := c.EnsureModel(context.Background()); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if !pulled {
		t.Error("expected a pull for the missing model")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"models": []map[string]string{}})
	}))
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := NewClient(&Config{Host: "http://127.0.0.1:1"})
	if err := down.Ping(context.Background()); err == nil {
		t.Error("expected ping failure for unreachable host")
	}
}
