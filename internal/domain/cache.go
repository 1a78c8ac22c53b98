package domain

import (
	"context"
	"net/http"
	"time"
)

// RequestKey はキャッシュのキー(メソッド + 絶対URL)を表す.
type RequestKey struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// KeyFor はリクエストからキャッシュキーを作成.
func KeyFor(req *Request) RequestKey {
	return RequestKey{Method: req.Method, URL: req.URL.String()}
}

// GetKey はGETリクエストのキーを作成.
func GetKey(rawURL string) RequestKey {
	return RequestKey{Method: http.MethodGet, URL: rawURL}
}

func (k RequestKey) String() string {
	return k.Method + " " + k.URL
}

// StoredResponse はキャッシュに保存されたレスポンスを表す.
type StoredResponse struct {
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header"`
	Body     []byte              `json:"body"`
	Type     ResponseType        `json:"type"`
	URL      string              `json:"url"`
	StoredAt time.Time           `json:"stored_at"`
}

// NewStoredResponse はレスポンスのコピーから保存用エントリを作成.
func NewStoredResponse(resp *Response) *StoredResponse {
	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)

	return &StoredResponse{
		Status:   resp.Status,
		Header:   http.Header(resp.Header).Clone(),
		Body:     body,
		Type:     resp.Type,
		URL:      resp.URL,
		StoredAt: time.Now(),
	}
}

// ToResponse は保存済みエントリをレスポンスに戻す.
func (s *StoredResponse) ToResponse() *Response {
	return &Response{
		Status:    s.Status,
		Header:    http.Header(s.Header).Clone(),
		Body:      s.Body,
		Type:      s.Type,
		URL:       s.URL,
		FromCache: true,
	}
}

// Cache は名前付きキャッシュ1つ分のインターフェース.
// Keys は最初に書き込まれた順(古い順)で返す. 既存キーへの Put は順序を変えない.
type Cache interface {
	Name() string
	Match(ctx context.Context, key RequestKey) (*StoredResponse, bool, error)
	Put(ctx context.Context, key RequestKey, resp *StoredResponse) error
	Delete(ctx context.Context, key RequestKey) (bool, error)
	Keys(ctx context.Context) ([]RequestKey, error)
}

// CacheStorage は名前付きキャッシュの集合を管理するインターフェース.
type CacheStorage interface {
	// Open は名前のキャッシュを開く. 存在しなければ作成する.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	// Keys はキャッシュ名を作成順で返す.
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
	// Match は全キャッシュを作成順に検索する.
	Match(ctx context.Context, key RequestKey) (*StoredResponse, bool, error)
	Close() error
}
