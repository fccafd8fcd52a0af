package executor

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestImageResult_Markdown(t *testing.T) {
	r := ImageResult{URL: "https://img.example/1.png"}
	assert.Equal(t, "[![image](https://img.example/1.png)](https://img.example/1.png)", r.Markdown())
}

func TestRequest_LastUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		want     string
	}{
		{"last user wins", []string{`{"role":"user","content":"first"}`, `{"role":"assistant","content":"reply"}`, `{"role":"user","content":"a red fox"}`}, "a red fox"},
		{"skips trailing assistant", []string{`{"role":"user","content":"a blue whale"}`, `{"role":"assistant","content":"done"}`}, "a blue whale"},
		{"array content", []string{`{"role":"user","content":[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"b"}]}`}, "a\nb"},
		{"gemini parts", []string{`{"role":"user","parts":[{"text":"sunset"}]}`}, "sunset"},
		{"no user message", []string{`{"role":"system","content":"x"}`}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Request{Messages: msgs(tt.messages...)}.LastUserMessage())
		})
	}
}

func TestDallEExecutor_Generate(t *testing.T) {
	tests := []struct {
		name        string
		size        string
		wantSize    string
		wantQuality string
	}{
		{"default size is standard", "", "1024x1024", "standard"},
		{"square is hd", "1024x1024", "1024x1024", "hd"},
		{"wide is standard", "1792x1024", "1792x1024", "standard"},
		{"tall is standard", "1024x1792", "1024x1792", "standard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			srv := newUpstream(t, &c, func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"created":1,"data":[{"url":"https://oai.example/img.png","revised_prompt":"x"}]}`)
			})
			e := NewDallEExecutor(config.ProviderConfig{BaseURL: srv.URL + "/v1"})
			req := Request{
				Model:    "dall-e-3",
				Messages: msgs(`{"role":"user","content":"old prompt"}`, `{"role":"assistant","content":"..."}`, `{"role":"user","content":"a lighthouse"}`),
				Settings: Settings{ImageSize: tt.size},
			}
			res, err := e.Generate(context.Background(), "sk-test", req)
			require.NoError(t, err)
			assert.Equal(t, "https://oai.example/img.png", res.URL)

			got := c.request()
			assert.Equal(t, "/v1/images/generations", got.path)
			assert.Equal(t, "Bearer sk-test", got.headers.Get("Authorization"))
			body := gjson.ParseBytes(got.body)
			assert.Equal(t, "a lighthouse", body.Get("prompt").String())
			assert.Equal(t, "dall-e-3", body.Get("model").String())
			assert.Equal(t, int64(1), body.Get("n").Int())
			assert.Equal(t, "url", body.Get("response_format").String())
			assert.Equal(t, tt.wantSize, body.Get("size").String())
			assert.Equal(t, tt.wantQuality, body.Get("quality").String())
		})
	}
}

func TestDallEExecutor_UpstreamError(t *testing.T) {
	var c captured
	srv := newUpstream(t, &c, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Your request was rejected as a result of our safety system."}}`)
	})
	_, err := NewDallEExecutor(config.ProviderConfig{BaseURL: srv.URL}).Generate(context.Background(), "k", Request{Messages: msgs(`{"role":"user","content":"x"}`)})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode())
	assert.Contains(t, upstream.Message, "safety system")
}

func TestStableDiffusionExecutor_Generate(t *testing.T) {
	var c captured
	srv := newUpstream(t, &c, func(w http.ResponseWriter) {
		fmt.Fprint(w, `{"status":"success","generationTime":1.2,"id":7,"output":["https://sd.example/out.png"]}`)
	})
	e := NewStableDiffusionExecutor(config.ProviderConfig{BaseURL: srv.URL + "/api/v3"})
	req := Request{
		Model:    "stable-diffusion",
		Messages: msgs(`{"role":"user","content":"a castle"}`),
		Settings: Settings{ImageSize: "1792x1024"},
	}
	res, err := e.Generate(context.Background(), "sd-key", req)
	require.NoError(t, err)
	assert.Equal(t, "https://sd.example/out.png", res.URL)

	got := c.request()
	assert.Equal(t, "/api/v3/text2img", got.path)
	body := gjson.ParseBytes(got.body)
	assert.Equal(t, "sd-key", body.Get("key").String())
	assert.Equal(t, "a castle", body.Get("prompt").String())
	// Requested size is ignored.
	assert.Equal(t, "1024", body.Get("width").String())
	assert.Equal(t, "1024", body.Get("height").String())
	assert.Equal(t, gjson.String, body.Get("width").Type)
}

func TestStableDiffusionExecutor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"error status", `{"status":"error","message":"Invalid API key"}`, "Invalid API key"},
		{"no output", `{"status":"processing","output":[]}`, `stable diffusion returned no image (status "processing")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			srv := newUpstream(t, &c, func(w http.ResponseWriter) { fmt.Fprint(w, tt.payload) })
			_, err := NewStableDiffusionExecutor(config.ProviderConfig{BaseURL: srv.URL}).Generate(context.Background(), "k", Request{Messages: msgs(`{"role":"user","content":"x"}`)})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestAssistantsClient_List(t *testing.T) {
	var c captured
	srv := newUpstream(t, &c, func(w http.ResponseWriter) {
		fmt.Fprint(w, `{"object":"list","data":[{"id":"asst_1","name":"Tutor"},{"id":"asst_2","name":"Coder"}],"has_more":false}`)
	})
	list, err := NewAssistantsClient(config.ProviderConfig{BaseURL: srv.URL + "/v1"}).List(context.Background(), "sk")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.JSONEq(t, `{"id":"asst_1","name":"Tutor"}`, string(list[0]))

	got := c.request()
	assert.Equal(t, "/v1/assistants", got.path)
	assert.Equal(t, "limit=100", got.query)
	assert.Equal(t, "assistants=v2", got.headers.Get("OpenAI-Beta"))
	assert.Equal(t, "Bearer sk", got.headers.Get("Authorization"))
}
