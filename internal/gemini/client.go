package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// placeholderKey is the value shipped in example env files.
const placeholderKey = "your_gemini_api_key_here"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one entry of the history sent with a generation request.
type Turn struct {
	Role Role
	Text string
}

type Client struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	baseURL     string
	client      *http.Client
}

func NewClient(apiKey, model string, maxTokens int, temperature float64) *Client {
	return &Client{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type request struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type response struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the history plus the new user message to the model and
// returns the reply text. Exactly one request is made; failures come back
// as *Error.
func (c *Client) Generate(ctx context.Context, system string, history []Turn, userMessage string) (string, error) {
	if c.apiKey == "" || c.apiKey == placeholderKey {
		return "", &Error{Kind: KindConfiguration, Detail: "GEMINI_API_KEY is not configured"}
	}
	if err := ValidateHistory(history); err != nil {
		return "", err
	}

	reqBody := request{
		Contents: make([]content, 0, len(history)+1),
		GenerationConfig: generationConfig{
			MaxOutputTokens: c.maxTokens,
			Temperature:     c.temperature,
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	for _, t := range history {
		reqBody.Contents = append(reqBody.Contents, content{Role: string(t.Role), Parts: []part{{Text: t.Text}}})
	}
	reqBody.Contents = append(reqBody.Contents, content{Role: string(RoleUser), Parts: []part{{Text: userMessage}}})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", &Error{Kind: KindGeneric, Detail: "marshal request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindGeneric, Detail: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Detail: "api call", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Detail: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return "", &Error{
				Kind:       classify(resp.StatusCode, errResp.Error.Status, errResp.Error.Message),
				StatusCode: resp.StatusCode,
				Detail:     errResp.Error.Message,
			}
		}
		msg := strings.TrimSpace(string(respBody))
		return "", &Error{Kind: classify(resp.StatusCode, "", msg), StatusCode: resp.StatusCode, Detail: msg}
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &Error{Kind: KindGeneric, Detail: "unmarshal response", Err: err}
	}

	if len(apiResp.Candidates) == 0 {
		if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
			return "", &Error{Kind: KindGeneric, Detail: "prompt blocked: " + apiResp.PromptFeedback.BlockReason}
		}
		return "", &Error{Kind: KindGeneric, Detail: "empty response candidates"}
	}

	var sb strings.Builder
	for _, p := range apiResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", &Error{Kind: KindGeneric, Detail: "empty response content"}
	}
	return sb.String(), nil
}

// ValidateHistory rejects a history the backend would refuse: the first
// turn must be user-authored.
func ValidateHistory(history []Turn) error {
	if len(history) > 0 && history[0].Role != RoleUser {
		return &Error{Kind: KindProtocol, Detail: "First content should be with role 'user', got " + string(history[0].Role)}
	}
	return nil
}
