// 包 fetch 封装共享的 HTTP 客户端（UA/Accept/超时/重定向上限/重试），
// 供名单下载、订阅解析与站点审计复用同一连接池。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 5
	// 单个页面读取上限，避免异常站点拖垮内存
	maxBodyBytes = 8 << 20
)

// Client 为带固定间隔重试的 HTTP 客户端；并发安全，可在多个 goroutine 间共享。
type Client struct {
	http      *http.Client
	userAgent string
	accept    string
	attempts  int
	delay     time.Duration
}

// Options 为客户端构造参数。
type Options struct {
	UserAgent    string
	Accept       string
	Timeout      time.Duration
	MaxRedirects int
	// Attempts 为单个 URL 的最大尝试次数（含首次），<1 时按 1 处理
	Attempts int
	// Delay 为两次尝试之间的固定等待
	Delay time.Duration
}

// New 创建客户端。
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   10,
	}
	maxRedirects := opts.MaxRedirects
	cl := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Client{
		http:      cl,
		userAgent: opts.UserAgent,
		accept:    opts.Accept,
		attempts:  opts.Attempts,
		delay:     opts.Delay,
	}
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}
	return req, nil
}

// wait 在两次尝试之间休眠；ctx 结束时提前返回其错误。
func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchHTML 抓取页面正文：传输错误或正文读取失败时重试，
// 任何状态码的响应正文都视为成功（由调用方判断内容是否合规）。
func (c *Client) FetchHTML(ctx context.Context, url string) (string, error) {
	var lastErr error
	for i := 1; i <= c.attempts; i++ {
		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return "", err
		}
		lastErr = err
		if i == c.attempts {
			break
		}
		if err := c.wait(ctx); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("fetch %s failed after %d attempts: %w", url, c.attempts, lastErr)
}

// requestError 表示请求本身无法构造（如非法 URL），重试没有意义。
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (c *Client) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return "", &requestError{err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

// Get 发起 GET 请求，仅 2xx 视为成功；非 2xx 与传输错误都会重试。
// 调用方负责关闭返回的 resp.Body。
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for i := 1; i <= c.attempts; i++ {
		req, err := c.newRequest(ctx, url)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("http status: %s", resp.Status)
			resp.Body.Close()
		} else {
			lastErr = err
		}
		if i == c.attempts {
			break
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// GetBytes 下载整个响应正文（用于远程名单等小文件）。
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return b, nil
}
