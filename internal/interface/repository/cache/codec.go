package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"offlineproxy/internal/domain"
)

// compressThreshold より大きいボディのみ圧縮を試みる
const compressThreshold = 1024

// codec はエントリのボディ圧縮を担当する
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec() (*codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &codec{encoder: encoder, decoder: decoder}, nil
}

// compress は圧縮後の方が小さい場合のみ圧縮データを返す
func (c *codec) compress(data []byte) ([]byte, bool) {
	if len(data) <= compressThreshold {
		return data, false
	}

	compData := c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if len(compData) >= len(data) {
		return data, false
	}
	return compData, true
}

// decompress は圧縮されたボディを展開する
func (c *codec) decompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress body: %w", err)
	}
	return out, nil
}

func (c *codec) close() {
	c.encoder.Close()
	c.decoder.Close()
}

// record は永続化用のエントリ表現
type record struct {
	Status     int                 `json:"status"`
	Header     map[string][]string `json:"header"`
	Type       domain.ResponseType `json:"type"`
	URL        string              `json:"url"`
	StoredAt   time.Time           `json:"stored_at"`
	Compressed bool                `json:"compressed"`
	Body       []byte              `json:"body"`
}

func (c *codec) encode(resp *domain.StoredResponse) ([]byte, error) {
	body, compressed := c.compress(resp.Body)
	return json.Marshal(&record{
		Status:     resp.Status,
		Header:     resp.Header,
		Type:       resp.Type,
		URL:        resp.URL,
		StoredAt:   resp.StoredAt,
		Compressed: compressed,
		Body:       body,
	})
}

func (c *codec) decode(data []byte) (*domain.StoredResponse, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}

	body, err := c.decompress(rec.Body, rec.Compressed)
	if err != nil {
		return nil, err
	}

	return &domain.StoredResponse{
		Status:   rec.Status,
		Header:   rec.Header,
		Body:     body,
		Type:     rec.Type,
		URL:      rec.URL,
		StoredAt: rec.StoredAt,
	}, nil
}
