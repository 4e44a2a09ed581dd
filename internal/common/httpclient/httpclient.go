package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/avast/retry-go/v4"
	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/common/logtrace"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// ServiceRoot is the path of the Admin Service on a site server.
const ServiceRoot = "AdminService"

// RequestIDHeader carries the client generated request ID.
const RequestIDHeader = "x-ms-client-request-id"

// Configurator supplies the connection details of a session.
type Configurator interface {
	GetSiteServer() string
	GetCredential() (username, password string, ok bool)
	GetSkipCertificateCheck() bool
}

// ErrConnection is returned for transport level failures: DNS, TLS, refused
// connections, timeouts and authentication rejections.
var ErrConnection = apperrors.ErrConnection

// APIError represents a non-success response from the Admin Service. Message
// is the server's error text when the body carries one.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return e.Message
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	// RetryAttempts is the total number of tries for GET requests. Zero or one
	// disables retries. Other methods are never retried.
	RetryAttempts uint
	// RetryDelay is the initial back-off between GET attempts.
	RetryDelay time.Duration
	// Timeout bounds a single HTTP exchange. Zero leaves the transport default.
	Timeout time.Duration
	// Transport overrides the base round tripper, mainly for tests.
	Transport http.RoundTripper
}

// HTTPClient talks to one site server.
type HTTPClient struct {
	config     Configurator
	httpClient *http.Client
	opts       ClientOptions
}

// NewClient creates a gateway client for the given configuration.
func NewClient(config Configurator, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	return NewClientWithOptions(config, clientOpts)
}

// NewClientWithOptions creates a gateway client using the provided options.
// Requests are authenticated with NTLM/Negotiate when the configuration
// carries a credential.
func NewClientWithOptions(config Configurator, opts ClientOptions) *HTTPClient {
	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.GetSkipCertificateCheck(),
			},
		}
	}

	var transport http.RoundTripper = base
	if _, _, ok := config.GetCredential(); ok {
		transport = ntlmssp.Negotiator{RoundTripper: base}
	}

	if opts.RetryDelay == 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// BaseURL returns the Admin Service root for a site server given as a host
// name, host:port, or URL.
func BaseURL(siteServer string) string {
	return "https://" + NormalizeHost(siteServer) + "/" + ServiceRoot
}

// NormalizeHost strips scheme, trailing slashes and a trailing AdminService
// segment from a site server value.
func NormalizeHost(siteServer string) string {
	host := strings.TrimSpace(siteServer)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimRight(host, "/")
	if i := strings.Index(strings.ToLower(host), "/"+strings.ToLower(ServiceRoot)); i >= 0 {
		host = host[:i]
	}
	return host
}

// RequestOptions contains options for making HTTP requests.
type RequestOptions struct {
	Method      string            // HTTP method (GET, POST, PATCH, DELETE)
	Path        string            // path relative to the AdminService root
	QueryParams map[string]string // optional query parameters such as $filter
	Body        []byte            // optional request body
}

// Invoke implements Invoker.
func (c *HTTPClient) Invoke(ctx context.Context, method, relativePath string, query map[string]string, body any) ([]byte, error) {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	case json.RawMessage:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, apperrors.ErrInvalidArgument.MsgErr("unable to encode request body", err)
		}
	}
	return c.DoRequest(ctx, RequestOptions{
		Method:      method,
		Path:        relativePath,
		QueryParams: query,
		Body:        payload,
	})
}

// DoRequest makes the request, retrying idempotent GETs on transport failures
// and gateway errors when retries are enabled.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) ([]byte, error) {
	if opts.Method != http.MethodGet || c.opts.RetryAttempts <= 1 {
		return c.do(ctx, opts)
	}

	var body []byte
	err := retry.Do(func() error {
		var err error
		body, err = c.do(ctx, opts)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(c.opts.RetryAttempts),
		retry.Delay(c.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Uint("attempt", n+1).Str("path", opts.Path).Err(err).Msg("retrying admin service request")
		}),
	)
	return body, err
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return errors.Is(err, ErrConnection)
}

func (c *HTTPClient) buildURL(opts RequestOptions) (string, error) {
	u, err := url.Parse(BaseURL(c.config.GetSiteServer()))
	if err != nil || u.Host == "" {
		return "", ErrConnection.Msg("invalid site server").Suffix(c.config.GetSiteServer())
	}
	u.Path = path.Join(u.Path, strings.TrimPrefix(opts.Path, "/"))

	if len(opts.QueryParams) > 0 {
		q := url.Values{}
		for k, v := range opts.QueryParams {
			q.Set(k, v)
		}
		// OData parsers do not treat '+' as a space.
		u.RawQuery = strings.ReplaceAll(q.Encode(), "+", "%20")
	}
	return u.String(), nil
}

func (c *HTTPClient) do(ctx context.Context, opts RequestOptions) ([]byte, error) {
	target, err := c.buildURL(opts)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader = http.NoBody
	if len(opts.Body) > 0 {
		bodyReader = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, target, bodyReader)
	if err != nil {
		return nil, ErrConnection.MsgErr("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if len(opts.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if user, pass, ok := c.config.GetCredential(); ok {
		req.SetBasicAuth(user, pass)
	}
	requestID := logtrace.EnsureRequestID(ctx)
	req.Header.Set(RequestIDHeader, requestID)

	logger := log.With().
		Str("request_id", requestID).
		Str("method", opts.Method).
		Str("path", opts.Path).
		Logger()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("admin service request failed")
		return nil, ErrConnection.Err(err).Suffix(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrConnection.MsgErr("failed to read response body", err)
	}
	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("admin service request")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrConnection.Err(newAPIError(resp.StatusCode, body)).
			Suffix(fmt.Sprintf("access denied by %s (%d)", NormalizeHost(c.config.GetSiteServer()), resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, newAPIError(resp.StatusCode, body)
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	}
	return body, nil
}

// newAPIError extracts the most specific message available from an error body.
// The Admin Service uses the OData shape {"error":{"message":...}}; IIS and
// the WMI route sometimes return {"Message":...} or plain text.
func newAPIError(status int, body []byte) *APIError {
	msg := ""
	if gjson.ValidBytes(body) {
		for _, p := range []string{"error.message", "error.innererror.message", "Message", "message", "error"} {
			if r := gjson.GetBytes(body, p); r.Exists() && r.Type == gjson.String && r.String() != "" {
				msg = r.String()
				break
			}
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{
		StatusCode: status,
		Message:    msg,
	}
}
