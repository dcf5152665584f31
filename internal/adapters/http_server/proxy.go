package httpserver

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// MountProxy forwards prefix/* to target through rt, which is expected to
// be the resource cache transport. A cache miss with the origin unreachable
// answers 504.
func (s *Server) MountProxy(prefix string, target *url.URL, rt http.RoundTripper) {
	prefix = strings.TrimRight(prefix, "/")
	p := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.Out.Header.Del("Cookie")
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("asset unavailable offline")
			writeProblem(w, http.StatusGatewayTimeout, "Offline", "resource not cached and origin unreachable")
		},
	}
	s.mux.Handle(prefix+"/*", p)
}
