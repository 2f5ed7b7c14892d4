// Server-sent events transport
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/r3labs/sse/v2"
)

// maxEventSize bounds a single event frame; all_scans snapshots can be large.
const maxEventSize = 1 << 20

// StreamCallbacks receive the lifecycle of a push channel.
//
// Callbacks run on the channel's reader goroutine, one at a time and in delivery order.
type StreamCallbacks struct {
	OnMessage func(data []byte) // one complete data frame
	OnError   func(err error)   // channel-level failure
	OnClose   func()            // called exactly once when the channel closes for any reason
}

// Stream opens a server-sent events channel at path and delivers each data frame to cb.OnMessage.
//
// Comment frames (":connected", ":keep-alive") are skipped. The returned function closes the
// channel; it is idempotent and safe to call from any goroutine, including from inside a callback.
//
// The channel never reconnects on its own. Callers that want a persistent subscription
// resubscribe from OnClose.
func (a *APIService) Stream(ctx context.Context, path string, cb StreamCallbacks) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)

	var closeOnce sync.Once
	finish := func() {
		closeOnce.Do(func() {
			cancel()
			if cb.OnClose != nil {
				cb.OnClose()
			}
		})
	}

	reportErr := func(err error) {
		if ctx.Err() == nil && cb.OnError != nil {
			cb.OnError(err)
		}
	}

	go func() {
		defer finish()

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				reportErr(&APIError{Message: fmt.Sprintf("rate limiter: %v", err), cause: err})
				return
			}
		}

		connected := false
		client := a.eventClient(path, &connected)

		err := client.SubscribeRawWithContext(ctx, func(ev *sse.Event) {
			if ctx.Err() != nil || len(ev.Data) == 0 || cb.OnMessage == nil {
				return
			}
			cb.OnMessage(ev.Data)
		})
		if err == nil {
			return
		}

		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			reportErr(apiErr)
		case !connected:
			reportErr(&APIError{Message: fmt.Sprintf("stream connect failed: %v", err), cause: err})
		default:
			reportErr(fmt.Errorf("stream read failed: %w", err))
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(cancel)
	}
}

// eventClient builds a single-shot SSE client for path. connected is set once the server
// accepts the subscription.
func (a *APIService) eventClient(path string, connected *bool) *sse.Client {
	client := sse.NewClient(a.baseURL+path, sse.ClientMaxBufferSize(maxEventSize))

	// The configured timeout covers the whole body, which would cut a long-lived stream.
	httpClient := *a.httpClient
	httpClient.Timeout = 0
	client.Connection = &httpClient

	client.Headers = a.authHeaders()
	client.ReconnectStrategy = &backoff.StopBackOff{}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return a.statusError(resp)
		}
		*connected = true
		return nil
	}
	return client
}
