package domain

import (
	"context"
	"net/http"
	"net/url"
)

// RequestMode はリクエストのモード.
type RequestMode string

const (
	ModeNavigate   RequestMode = "navigate"
	ModeSameOrigin RequestMode = "same-origin"
	ModeNoCORS     RequestMode = "no-cors"
	ModeCORS       RequestMode = "cors"
)

// ResponseType はレスポンスの種別.
type ResponseType string

const (
	TypeBasic          ResponseType = "basic"
	TypeCORS           ResponseType = "cors"
	TypeOpaque         ResponseType = "opaque"
	TypeOpaqueRedirect ResponseType = "opaqueredirect"
	TypeError          ResponseType = "error"
)

// Request はインターセプトされたリクエストを表す.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Mode   RequestMode
}

// IsNavigation はページ遷移リクエストかどうか.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// Response はネットワークまたはキャッシュからのレスポンスを表す.
type Response struct {
	Status     int
	Header     http.Header
	Body       []byte
	Type       ResponseType
	Redirected bool
	URL        string
	FromCache  bool
}

// OK はステータスが2xxかどうか.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Cacheable は200かつbasicでリダイレクトされていないレスポンスのみtrue.
func (r *Response) Cacheable() bool {
	return r != nil && r.Status == http.StatusOK && r.Type == TypeBasic && !r.Redirected
}

// Fetcher はネットワーク取得のインターフェース.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}
