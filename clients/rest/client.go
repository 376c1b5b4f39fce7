package rest

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gwicho38/lsh-sub006/clients"
	"github.com/gwicho38/lsh-sub006/errutils"
)

const contentTypeHdr = "Content-Type"

// Client is a configurable HTTP client: codec-driven request/response
// bodies (via Request/toHttpRequest), optional retry budget, and an
// optional circuit breaker in front of Execute.
type Client struct {
	httpClient     *http.Client
	transport      *http.Transport
	codecOptions   map[string]interface{}
	tlsConfig      *tls.Config
	retryInfo      *clients.RetryInfo
	circuitBreaker *clients.CircuitBreaker
	errStatusCodes []int
}

// NewClient creates a Client with a 30s request timeout and a transport
// tuned for modest connection reuse.
func NewClient() *Client {
	tlsConfig := &tls.Config{}
	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient:   &http.Client{Transport: transport, Timeout: 30 * time.Second},
		transport:    transport,
		codecOptions: map[string]interface{}{},
		tlsConfig:    tlsConfig,
	}
}

// ReqTimeout sets the overall per-request timeout, in seconds.
func (c *Client) ReqTimeout(seconds int) *Client {
	c.httpClient.Timeout = time.Duration(seconds) * time.Second
	return c
}

// IdleTimeout sets how long an idle keep-alive connection stays open, in seconds.
func (c *Client) IdleTimeout(seconds int) *Client {
	c.transport.IdleConnTimeout = time.Duration(seconds) * time.Second
	return c
}

// MaxIdle sets the maximum number of idle connections across all hosts.
func (c *Client) MaxIdle(n int) *Client {
	c.transport.MaxIdleConns = n
	return c
}

// MaxIdlePerHost sets the maximum number of idle connections kept per host.
func (c *Client) MaxIdlePerHost(n int) *Client {
	c.transport.MaxIdleConnsPerHost = n
	return c
}

// AddCodecOption sets a codec option (e.g. codec.PrettyPrint) applied to
// every request/response body this client serializes or parses.
func (c *Client) AddCodecOption(key string, value interface{}) *Client {
	c.codecOptions[key] = value
	return c
}

// ErrorOnHttpStatus registers status codes that Execute should surface as
// errors even though the transport round trip itself succeeded. Calling it
// with no arguments clears the list.
func (c *Client) ErrorOnHttpStatus(codes ...int) *Client {
	c.errStatusCodes = codes
	return c
}

// UseEnvProxy routes outgoing requests through proxyURL, optionally
// authenticating with username/password.
func (c *Client) UseEnvProxy(proxyURL, username, password string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return err
	}
	if username != "" {
		u.User = url.UserPassword(username, password)
	}
	c.transport.Proxy = http.ProxyURL(u)
	return nil
}

// Retry configures the client's retry budget: maxRetries attempts beyond
// the first, each separated by waitMs milliseconds.
func (c *Client) Retry(maxRetries, waitMs int) *Client {
	c.retryInfo = &clients.RetryInfo{MaxRetries: maxRetries, Wait: waitMs}
	return c
}

// UseCircuitBreaker arms a circuit breaker in front of Execute.
func (c *Client) UseCircuitBreaker(failureThreshold, successThreshold uint64, maxHalfOpen, timeoutSeconds uint32) *Client {
	c.circuitBreaker = clients.NewCircuitBreaker(&clients.BreakerInfo{
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		MaxHalfOpen:      maxHalfOpen,
		Timeout:          timeoutSeconds,
	})
	return c
}

// SetTLSCerts adds client certificates presented during the TLS handshake.
func (c *Client) SetTLSCerts(certs ...tls.Certificate) (*Client, error) {
	c.tlsConfig.Certificates = append(c.tlsConfig.Certificates, certs...)
	return c, nil
}

// SetCACerts adds PEM-encoded CA certificates used to verify the server.
func (c *Client) SetCACerts(paths ...string) (*Client, error) {
	pool := c.tlsConfig.RootCAs
	if pool == nil {
		pool = x509.NewCertPool()
	}
	for _, p := range paths {
		pemBytes, err := os.ReadFile(p)
		if err != nil {
			return c, err
		}
		if !pool.AppendCertsFromPEM(pemBytes) {
			return c, errutils.FmtError("no certificates found in %s", p)
		}
	}
	c.tlsConfig.RootCAs = pool
	return c, nil
}

// SSlVerify toggles TLS certificate verification. Disabling it is only
// appropriate against trusted local endpoints (e.g. a loopback daemon).
func (c *Client) SSlVerify(verify bool) (*Client, error) {
	c.tlsConfig.InsecureSkipVerify = !verify
	return c, nil
}

// NewRequest builds a Request bound to this client.
func (c *Client) NewRequest(u, method string) *Request {
	return &Request{
		url:    u,
		method: method,
		header: http.Header{},
		client: c,
	}
}

// Execute sends req, honoring the client's retry budget and circuit
// breaker, and returns the raw *http.Response on success.
func (c *Client) Execute(req *Request) (*http.Response, error) {
	if c.circuitBreaker != nil {
		if err := c.circuitBreaker.CanExecute(); err != nil {
			return nil, err
		}
	}

	attempts := 1
	var wait time.Duration
	if c.retryInfo != nil {
		attempts = c.retryInfo.MaxRetries + 1
		wait = time.Duration(c.retryInfo.Wait) * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(wait)
		}

		httpReq, err := req.toHttpRequest()
		if err != nil {
			lastErr = err
			break
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}
		if c.isErrorStatus(resp.StatusCode) {
			lastErr = errutils.FmtError("rest: received status %d from %s", resp.StatusCode, req.url)
			resp.Body.Close()
			continue
		}

		if c.circuitBreaker != nil {
			c.circuitBreaker.OnExecution(true)
		}
		return resp, nil
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.OnExecution(false)
	}
	return nil, lastErr
}

func (c *Client) isErrorStatus(code int) bool {
	for _, s := range c.errStatusCodes {
		if s == code {
			return true
		}
	}
	return false
}

// validateHeaders rejects multipart bodies on methods that don't carry one.
func validateHeaders(method string) error {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return nil
	default:
		return errutils.FmtError("multipart bodies are only supported for POST, PUT, and PATCH, got %q", method)
	}
}

// writeMultipartFormFile streams file under fieldName/fileName into w.
func writeMultipartFormFile(w *multipart.Writer, fieldName, fileName string, file io.Reader) error {
	part, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
