package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var errUpstreamStatus = errors.New("upstream server error")

// breakerTransport counts transport errors and 5xx answers against the
// breaker. The 5xx response itself is still relayed to the client.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})
	if errors.Is(err, errUpstreamStatus) {
		return resp, nil
	}
	return resp, err
}

// NewServiceProxy proxies to one backend service, keeping the inbound path.
func NewServiceProxy(name, rawURL string, breaker circuitbreaker.Config, log *slog.Logger) (*httputil.ReverseProxy, error) {
	if log == nil {
		log = slog.Default()
	}
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q", name, rawURL)
	}
	if breaker.Name == "" {
		breaker.Name = name
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: &breakerTransport{
			next: otelhttp.NewTransport(http.DefaultTransport),
			cb:   circuitbreaker.New[*http.Response](breaker, log),
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if circuitbreaker.IsOpen(err) {
				httpx.ServiceUnavailable(w, name+" is temporarily unavailable")
				return
			}
			log.WarnContext(r.Context(), "upstream request failed", "service", name, "path", r.URL.Path, "err", err)
			httpx.RespondError(w, http.StatusBadGateway, "bad_gateway", name+" is unreachable")
		},
	}, nil
}
