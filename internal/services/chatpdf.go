package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Lllllllleong/documentnarrator/internal/gcp"
)

// DefaultChatPDFBaseURL is the public ChatPDF API root.
const DefaultChatPDFBaseURL = "https://api.chatpdf.com/v1"

// DocumentSummarizer is a document-chat service that first accepts a file and
// assigns it an ID, then answers prompts addressed to that ID.
type DocumentSummarizer interface {
	AddFile(ctx context.Context, path string) (sourceID string, err error)
	Summarize(ctx context.Context, sourceID string) (string, error)
}

// ChatPDFClient talks to the ChatPDF REST API.
type ChatPDFClient struct {
	BaseURL string
	APIKey  string
	Prompt  string
	Client  *http.Client
}

// NewChatPDFClient returns a client using the fixed document prompt.
func NewChatPDFClient(baseURL, apiKey string, timeout time.Duration) *ChatPDFClient {
	if baseURL == "" {
		baseURL = DefaultChatPDFBaseURL
	}
	return &ChatPDFClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		Prompt:  gcp.DocumentNarrationPrompt,
		Client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	SourceID string        `json:"sourceId"`
	Messages []chatMessage `json:"messages"`
}

// AddFile uploads the raw PDF bytes and returns the server-assigned source ID.
func (c *ChatPDFClient) AddFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sources/add-file", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		SourceID string `json:"sourceId"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("chatpdf add-file: %w", err)
	}
	if out.SourceID == "" {
		return "", fmt.Errorf("sourceId not found in ChatPDF response")
	}
	return out.SourceID, nil
}

// Summarize asks for the structured narration of the document behind sourceID.
func (c *ChatPDFClient) Summarize(ctx context.Context, sourceID string) (string, error) {
	body, err := json.Marshal(chatRequest{
		SourceID: sourceID,
		Messages: []chatMessage{{Role: "user", Content: c.Prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chats/message", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Content string `json:"content"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("chatpdf message: %w", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("chatpdf returned an empty summary for %s", sourceID)
	}
	return out.Content, nil
}

func (c *ChatPDFClient) do(req *http.Request, out any) error {
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
