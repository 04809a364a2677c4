package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// Client is the HTTP implementation of MessagingService
type Client struct {
	baseURL    string
	httpClient *client.Client
	token      string

	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ MessagingService = (*Client)(nil)

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the authentication token
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeouts overrides the dial, read and write timeouts. Nonpositive
// values keep the defaults.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *Client) {
		if dial > 0 {
			c.dialTimeout = dial
		}
		if read > 0 {
			c.readTimeout = read
		}
		if write > 0 {
			c.writeTimeout = write
		}
	}
}

// NewClient creates a new messaging client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:      baseURL,
		dialTimeout:  10 * time.Second,
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		httpClient, err := client.NewClient(
			client.WithDialTimeout(c.dialTimeout),
			client.WithClientReadTimeout(c.readTimeout),
			client.WithWriteTimeout(c.writeTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = httpClient
	}

	return c, nil
}

// SetToken sets the authentication token
func (c *Client) SetToken(token string) {
	c.token = token
}

// GetOrCreateConversation implements MessagingService
func (c *Client) GetOrCreateConversation(ctx context.Context, targetUserId string) (*GetOrCreateResult, error) {
	req := &GetOrCreateRequest{TargetUserId: targetUserId}
	var result GetOrCreateResult
	if err := c.post(ctx, "/conversation/get_or_create", req, &result); err != nil {
		return nil, err
	}
	if result.Conversation == nil {
		return nil, errcode.ErrBadResponse
	}
	return &result, nil
}

// ListConversations implements MessagingService
func (c *Client) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	params := map[string]string{
		"page":  strconv.Itoa(req.Page),
		"limit": strconv.Itoa(req.Limit),
	}
	if req.Search != "" {
		params["search"] = req.Search
	}
	if req.Filter != "" {
		params["filter"] = req.Filter
	}
	var result ListConversationsResponse
	if err := c.get(ctx, "/conversation/list", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMessages implements MessagingService
func (c *Client) ListMessages(ctx context.Context, conversationId string, page, limit int) (*ListMessagesResponse, error) {
	params := map[string]string{
		"conversation_id": conversationId,
		"page":            strconv.Itoa(page),
		"limit":           strconv.Itoa(limit),
	}
	var result ListMessagesResponse
	if err := c.get(ctx, "/msg/list", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage implements MessagingService
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*entity.Message, error) {
	var result entity.Message
	if err := c.post(ctx, "/msg/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// request makes an HTTP request and decodes the enveloped response
func (c *Client) request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	reqURL := c.baseURL + path

	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(reqURL)
	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return errcode.ErrInvalidParam.Wrap(err)
		}
		req.SetBody(jsonBody)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return errcode.ErrBackendUnavailable.Wrap(err)
	}

	return decodeEnvelope(resp.Body(), result)
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		reqURL += "?" + query.Encode()
	}

	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(reqURL)

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return errcode.ErrBackendUnavailable.Wrap(err)
	}

	return decodeEnvelope(resp.Body(), result)
}

// post makes a POST request
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.request(ctx, consts.MethodPost, path, body, result)
}

// decodeEnvelope decodes the {code,msg,data} envelope and maps non-zero API
// codes to typed errors.
func decodeEnvelope(body []byte, result interface{}) error {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return errcode.ErrBadResponse.Wrap(err)
	}

	if apiResp.Code != 0 {
		return mapAPIError(apiResp.Code, apiResp.Msg)
	}

	if result != nil && apiResp.Data != nil {
		dataBytes, err := json.Marshal(apiResp.Data)
		if err != nil {
			return errcode.ErrBadResponse.Wrap(err)
		}
		if err := json.Unmarshal(dataBytes, result); err != nil {
			return errcode.ErrBadResponse.Wrap(err)
		}
	}

	return nil
}

// Backend API codes worth a dedicated kind. Unknown codes degrade to
// transport errors so the presentation layer always sees a typed failure.
const (
	apiCodeInvalidParam = 1001
	apiCodeForbidden    = 1004
	apiCodeBlocked      = 1008
	apiCodeNotFound     = 1005
	apiCodeUserNotFound = 2006
	apiCodeConvNotFound = 4003
)

func mapAPIError(code int, msg string) *errcode.Error {
	kind := errcode.KindTransport
	switch code {
	case apiCodeInvalidParam:
		kind = errcode.KindValidation
	case apiCodeForbidden, apiCodeBlocked:
		kind = errcode.KindConflict
	case apiCodeNotFound, apiCodeUserNotFound, apiCodeConvNotFound:
		kind = errcode.KindNotFound
	}
	if msg == "" {
		msg = "backend error"
	}
	return errcode.New(code, kind, msg)
}
