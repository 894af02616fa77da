package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/gorilla/websocket"
)

// Subscribe streams changes of table matching filter to fn until ctx is
// done or the server closes the feed. fn runs on the reading goroutine.
func (c *Client) Subscribe(ctx context.Context, table models.Table, filter models.Filter, fn func(models.Change)) error {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/realtime/v1"
	q := filter.Query()
	q.Set("table", string(table))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	if t, ok := c.http.Transport.(*http.Transport); ok && t.TLSClientConfig != nil {
		dialer.TLSClientConfig = t.TLSClientConfig.Clone()
	}
	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("subscribe %s: %w", table, &StatusError{Code: resp.StatusCode})
		}
		return fmt.Errorf("subscribe %s: %w", table, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var change models.Change
		if err := conn.ReadJSON(&change); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
		fn(change)
	}
}
