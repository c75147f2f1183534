// Package client talks to a remote sheet server over its REST API. A Client
// is a sheet.Mirror: every accepted local mutation is replayed remotely with
// the same ids before the local copy is committed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sheettracker/api/internal/sheet"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the remote server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote sheet: status %d", e.Status)
	}
	return fmt.Sprintf("remote sheet: status %d: %s: %s", e.Status, e.Code, e.Message)
}

var ErrUnsupportedOp = errors.New("mutation cannot be mirrored")

// Apply replays m against the remote server.
func (c *Client) Apply(ctx context.Context, m sheet.Mutation) error {
	method, path, body, err := route(m)
	if err != nil {
		return err
	}
	return c.call(ctx, method, path, body, nil)
}

// Sheet fetches the remote tree.
func (c *Client) Sheet(ctx context.Context) (sheet.Sheet, error) {
	var out sheet.Sheet
	err := c.call(ctx, http.MethodGet, "/api/sheet", nil, &out)
	return out, err
}

// Ping checks that the remote server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/api/health", nil, nil)
}

func route(m sheet.Mutation) (method, path string, body any, err error) {
	topic := "/api/topics/" + url.PathEscape(m.TopicID)
	sub := topic + "/subtopics/" + url.PathEscape(m.SubTopicID)
	reorder := map[string]string{"activeId": m.ActiveID, "overId": m.OverID}

	switch m.Op {
	case sheet.OpCreateTopic:
		return http.MethodPost, "/api/topics", sheet.TopicInput{ID: m.ID, Name: m.Name}, nil
	case sheet.OpRenameTopic:
		return http.MethodPut, "/api/topics/" + url.PathEscape(m.ID), map[string]string{"name": m.Name}, nil
	case sheet.OpDeleteTopic:
		return http.MethodDelete, "/api/topics/" + url.PathEscape(m.ID), nil, nil
	case sheet.OpCreateSubTopic:
		return http.MethodPost, topic + "/subtopics", sheet.SubTopicInput{ID: m.ID, Name: m.Name}, nil
	case sheet.OpRenameSubTopic:
		return http.MethodPut, topic + "/subtopics/" + url.PathEscape(m.ID), map[string]string{"name": m.Name}, nil
	case sheet.OpDeleteSubTopic:
		return http.MethodDelete, topic + "/subtopics/" + url.PathEscape(m.ID), nil, nil
	case sheet.OpCreateQuestion:
		if m.Question == nil {
			return "", "", nil, fmt.Errorf("%w: %s without question", ErrUnsupportedOp, m.Op)
		}
		in := *m.Question
		in.ID = m.ID
		return http.MethodPost, sub + "/questions", in, nil
	case sheet.OpUpdateQuestion:
		if m.Patch == nil {
			return "", "", nil, fmt.Errorf("%w: %s without patch", ErrUnsupportedOp, m.Op)
		}
		return http.MethodPut, sub + "/questions/" + url.PathEscape(m.ID), m.Patch, nil
	case sheet.OpDeleteQuestion:
		return http.MethodDelete, sub + "/questions/" + url.PathEscape(m.ID), nil, nil
	case sheet.OpToggleSolved:
		return http.MethodPatch, sub + "/questions/" + url.PathEscape(m.ID) + "/toggle", nil, nil
	case sheet.OpReorderTopics:
		return http.MethodPost, "/api/reorder/topics", reorder, nil
	case sheet.OpReorderSubTopics:
		reorder["topicId"] = m.TopicID
		return http.MethodPost, "/api/reorder/subtopics", reorder, nil
	case sheet.OpReorderQuestions:
		reorder["topicId"] = m.TopicID
		reorder["subId"] = m.SubTopicID
		return http.MethodPost, "/api/reorder/questions", reorder, nil
	case sheet.OpUpdateMeta:
		if m.Meta == nil {
			return "", "", nil, fmt.Errorf("%w: %s without meta", ErrUnsupportedOp, m.Op)
		}
		return http.MethodPut, "/api/sheet/meta", m.Meta, nil
	}
	return "", "", nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, m.Op)
}

func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Code, envelope.Error
		}
		return apiErr
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
