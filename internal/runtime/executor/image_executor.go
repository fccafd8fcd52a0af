package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/multichat/chatproxy/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Image model identifiers.
const (
	ModelDallE3          = "dall-e-3"
	ModelStableDiffusion = "stable-diffusion"
)

// StableDiffusionBaseURL hosts the text2img endpoint.
const StableDiffusionBaseURL = "https://stablediffusionapi.com/api/v3"

const defaultImageSize = "1024x1024"

func readJSON(name string, body io.ReadCloser) ([]byte, error) {
	defer func() {
		if errClose := body.Close(); errClose != nil {
			log.Errorf("%s executor: close response body error: %v", name, errClose)
		}
	}()
	return io.ReadAll(body)
}

// DallEExecutor generates images with the OpenAI images API.
type DallEExecutor struct {
	baseURL string
	client  *http.Client
}

// NewDallEExecutor builds the DALL-E adapter on the OpenAI provider settings.
func NewDallEExecutor(cfg config.ProviderConfig) *DallEExecutor {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = OpenAIBaseURL
	}
	return &DallEExecutor{baseURL: base, client: newHTTPClient()}
}

func (e *DallEExecutor) Identifier() string { return ModelDallE3 }

func (e *DallEExecutor) DisplayName() string { return "OpenAI" }

func (e *DallEExecutor) buildPayload(req Request) ([]byte, error) {
	// Only an explicitly requested square image is hd; the default size is not.
	size := req.Settings.ImageSize
	quality := "standard"
	if size == "1024x1024" {
		quality = "hd"
	}
	if size == "" {
		size = defaultImageSize
	}
	model := req.Model
	if model == "" {
		model = ModelDallE3
	}
	payload := []byte(`{"n":1,"response_format":"url"}`)
	var err error
	for _, kv := range []struct {
		path  string
		value string
	}{
		{"prompt", req.LastUserMessage()},
		{"model", model},
		{"quality", quality},
		{"size", size},
	} {
		if payload, err = sjson.SetBytes(payload, kv.path, kv.value); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Generate requests a single image and returns its URL.
func (e *DallEExecutor) Generate(ctx context.Context, apiKey string, req Request) (ImageResult, error) {
	if strings.TrimSpace(apiKey) == "" {
		return ImageResult{}, &CredentialMissingError{Provider: e.DisplayName()}
	}
	payload, err := e.buildPayload(req)
	if err != nil {
		return ImageResult{}, err
	}
	_, body, err := send(ctx, e.client, "dall-e", http.MethodPost, joinURL(e.baseURL, "/images/generations"), payload,
		map[string]string{"Authorization": "Bearer " + apiKey})
	if err != nil {
		return ImageResult{}, err
	}
	data, err := readJSON("dall-e", body)
	if err != nil {
		return ImageResult{}, err
	}
	imgURL := gjson.GetBytes(data, "data.0.url").String()
	if imgURL == "" {
		return ImageResult{}, &UpstreamError{Status: http.StatusBadGateway, Message: "image response did not include a url"}
	}
	return ImageResult{URL: imgURL, Model: ModelDallE3}, nil
}

// StableDiffusionExecutor generates images with the stablediffusionapi.com
// text2img endpoint. The key travels in the body and the size is fixed.
type StableDiffusionExecutor struct {
	baseURL string
	client  *http.Client
}

// NewStableDiffusionExecutor builds the Stable Diffusion adapter.
func NewStableDiffusionExecutor(cfg config.ProviderConfig) *StableDiffusionExecutor {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = StableDiffusionBaseURL
	}
	return &StableDiffusionExecutor{baseURL: base, client: newHTTPClient()}
}

func (e *StableDiffusionExecutor) Identifier() string { return ModelStableDiffusion }

func (e *StableDiffusionExecutor) DisplayName() string { return "Stable Diffusion" }

// Generate submits a text2img job. Width and height are always 1024
// regardless of the requested size.
func (e *StableDiffusionExecutor) Generate(ctx context.Context, apiKey string, req Request) (ImageResult, error) {
	if strings.TrimSpace(apiKey) == "" {
		return ImageResult{}, &CredentialMissingError{Provider: e.DisplayName()}
	}
	payload := []byte(`{"width":"1024","height":"1024"}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "key", apiKey); err != nil {
		return ImageResult{}, err
	}
	if payload, err = sjson.SetBytes(payload, "prompt", req.LastUserMessage()); err != nil {
		return ImageResult{}, err
	}
	_, body, err := send(ctx, e.client, "stable-diffusion", http.MethodPost, joinURL(e.baseURL, "/text2img"), payload, nil)
	if err != nil {
		return ImageResult{}, err
	}
	data, err := readJSON("stable-diffusion", body)
	if err != nil {
		return ImageResult{}, err
	}
	if gjson.GetBytes(data, "status").String() == "error" {
		return ImageResult{}, &UpstreamError{Status: http.StatusBadGateway, Message: upstreamMessage(data, http.StatusBadGateway)}
	}
	imgURL := gjson.GetBytes(data, "output.0").String()
	if imgURL == "" {
		status := gjson.GetBytes(data, "status").String()
		return ImageResult{}, &UpstreamError{Status: http.StatusBadGateway, Message: fmt.Sprintf("stable diffusion returned no image (status %q)", status)}
	}
	return ImageResult{URL: imgURL, Model: ModelStableDiffusion}, nil
}
