package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
)

const KucoinBulletPublicURL = "https://api.kucoin.com/api/v1/bullet-public"

// NewDefaultHTTPClient REST 调用默认 10s 超时。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// BulletToken bullet-public 返回的连接参数。
type BulletToken struct {
	Token        string
	Endpoint     string
	PingInterval time.Duration
}

type bulletResp struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			Protocol     string `json:"protocol"`
			PingInterval int64  `json:"pingInterval"`
			PingTimeout  int64  `json:"pingTimeout"`
		} `json:"instanceServers"`
	} `json:"data"`
}

// BulletClient 申请公共 WS token（无需 API key）。HTTPClient 可注入 httptest。
type BulletClient struct {
	URL        string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

func (c *BulletClient) Fetch(ctx context.Context) (BulletToken, error) {
	if c == nil || c.HTTPClient == nil {
		return BulletToken{}, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return BulletToken{}, err
		}
	}
	endpoint := c.URL
	if endpoint == "" {
		endpoint = KucoinBulletPublicURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return BulletToken{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return BulletToken{}, fmt.Errorf("bullet-public request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return BulletToken{}, fmt.Errorf("bullet-public read: %w", err)
	}
	if resp.StatusCode >= 300 {
		return BulletToken{}, fmt.Errorf("bullet-public status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var br bulletResp
	if err := sonnet.Unmarshal(body, &br); err != nil {
		return BulletToken{}, fmt.Errorf("bullet-public decode: %w", err)
	}
	if br.Code != "" && br.Code != "200000" {
		return BulletToken{}, fmt.Errorf("bullet-public code %s: %s", br.Code, br.Msg)
	}
	if br.Data.Token == "" {
		return BulletToken{}, fmt.Errorf("bullet-public: missing token")
	}
	tok := BulletToken{Token: br.Data.Token}
	if len(br.Data.InstanceServers) > 0 {
		srv := br.Data.InstanceServers[0]
		tok.Endpoint = srv.Endpoint
		tok.PingInterval = time.Duration(srv.PingInterval) * time.Millisecond
	}
	if tok.Endpoint == "" {
		return BulletToken{}, ErrEmptyEndpoint
	}
	return tok, nil
}

// URL 拼接 token 与 connectId。
func (t BulletToken) URL() string {
	q := url.Values{}
	q.Set("token", t.Token)
	q.Set("connectId", uuid.NewString())
	sep := "?"
	if strings.Contains(t.Endpoint, "?") {
		sep = "&"
	}
	return t.Endpoint + sep + q.Encode()
}
