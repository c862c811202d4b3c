package hfqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"notesqa/internal/qa"
)

// Config configures a question-answering inference endpoint.
type Config struct {
	URL       string
	APIKeyEnv string
	Timeout   time.Duration
}

// Client calls a Hugging Face style question-answering endpoint, e.g. a
// hosted deepset/roberta-base-squad2.
type Client struct {
	url        string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryBase  time.Duration
}

var _ qa.Model = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("qa endpoint url is required")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     key,
		client:     &http.Client{Timeout: t},
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
	}, nil
}

func (c *Client) Name() string { return "hf" }

type request struct {
	Inputs struct {
		Question string `json:"question"`
		Context  string `json:"context"`
	} `json:"inputs"`
}

type answer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

func (c *Client) Extract(ctx context.Context, question, passage string) (qa.Span, error) {
	var body request
	body.Inputs.Question = question
	body.Inputs.Context = passage
	data, err := json.Marshal(body)
	if err != nil {
		return qa.Span{}, err
	}
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
		if err != nil {
			return qa.Span{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return qa.Span{}, fmt.Errorf("qa request failed: %w", err)
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return qa.Span{}, fmt.Errorf("read qa response: %w", err)
		}
		// 503 while the model is loading, 429 when rate limited
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
			if attempt < c.maxRetries {
				delay := c.retryBase << attempt
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
					delay = time.Duration(secs) * time.Second
				}
				log.Warn().Int("status", resp.StatusCode).Dur("delay", delay).Msg("QA endpoint busy, retrying")
				select {
				case <-ctx.Done():
					return qa.Span{}, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
		}
		if resp.StatusCode >= 300 {
			return qa.Span{}, fmt.Errorf("qa endpoint failed: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		}
		return decode(payload, passage)
	}
	return qa.Span{}, errors.New("no answer returned")
}

// decode accepts either a single answer object or a list of candidates,
// taking the first.
func decode(payload []byte, passage string) (qa.Span, error) {
	var a answer
	if err := json.Unmarshal(payload, &a); err != nil {
		var list []answer
		if err := json.Unmarshal(payload, &list); err != nil {
			return qa.Span{}, fmt.Errorf("parse qa response: %w", err)
		}
		if len(list) == 0 {
			return qa.Span{}, errors.New("qa response has no candidates")
		}
		a = list[0]
	}
	if a.Answer == "" && a.End > a.Start && a.End <= len(passage) {
		a.Answer = passage[a.Start:a.End]
	}
	return qa.Span{Answer: strings.TrimSpace(a.Answer), Score: a.Score}, nil
}
