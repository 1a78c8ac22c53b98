package usecase

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"offlineproxy/internal/domain"
)

// TunnelUseCase はキャッシュ対象外のHTTPS(CONNECT)をそのまま中継する
type TunnelUseCase struct {
	metrics domain.MetricsCollector
	logger  domain.Logger
	dialer  *net.Dialer
}

// NewTunnelUseCase は新しいTunnelUseCaseインスタンスを作成
func NewTunnelUseCase(metrics domain.MetricsCollector, logger domain.Logger) *TunnelUseCase {
	return &TunnelUseCase{
		metrics: metrics,
		logger:  logger,
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		},
	}
}

// Dial はトンネル先に接続する
func (uc *TunnelUseCase) Dial(ctx context.Context, host string) (net.Conn, error) {
	conn, err := uc.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		uc.metrics.RecordError()
		return nil, &domain.ErrConnectionFailed{Host: host, Err: err}
	}
	return conn, nil
}

// Relay はクライアントとサーバーの間で双方向にデータを転送
func (uc *TunnelUseCase) Relay(ctx context.Context, clientConn, serverConn net.Conn) error {
	uc.metrics.RecordBypass()

	var wg sync.WaitGroup
	wg.Add(2)

	errc := make(chan error, 2)

	copyHalf := func(dst, src net.Conn, direction string) {
		defer wg.Done()
		buf := make([]byte, 32*1024)
		n, err := io.CopyBuffer(dst, src, buf)
		uc.metrics.AddBytesTransferred(n)
		if err != nil && !isConnectionClosed(err) {
			uc.logger.Error("Tunnel copy failed", err, map[string]interface{}{
				"direction": direction,
			})
			errc <- err
		}
		// 送信側のコネクションをシャットダウン
		if tc, ok := dst.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}

	go copyHalf(serverConn, clientConn, "client->server")
	go copyHalf(clientConn, serverConn, "server->client")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	case <-done:
		return nil
	}
}

// isConnectionClosed は接続が正常に閉じられたかを判断
func isConnectionClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
