package reload

import (
	"net/http"
	"strings"
)

const (
	// EventsPath is the SSE endpoint served by Hub.
	EventsPath = "/__reload"
	// ScriptPath serves the client script injected into HTML pages.
	ScriptPath = "/__reload.js"

	maxInjectBuffer = 512 * 1024
)

// Script is the browser client. Stylesheet events re-request matching
// <link rel="stylesheet"> elements with a cache-busting query; anything else
// reloads the page.
const Script = `(() => {
  if (window.__PAGEBUILD_RELOAD__) return;
  window.__PAGEBUILD_RELOAD__ = true;
  function refreshStyles(paths) {
    const stamp = Date.now();
    let swapped = 0;
    document.querySelectorAll('link[rel="stylesheet"]').forEach((link) => {
      const url = new URL(link.href, location.href);
      const path = url.pathname.replace(/^\//, '');
      if (paths && paths.length && !paths.some((p) => path === p || path.endsWith('/' + p))) return;
      url.searchParams.set('__reload', stamp);
      link.href = url.toString();
      swapped++;
    });
    if (swapped === 0) location.reload();
  }
  function connect() {
    const es = new EventSource('` + EventsPath + `');
    es.onmessage = (e) => {
      try {
        const ev = JSON.parse(e.data);
        if (ev.kind === 'css') { refreshStyles(ev.paths); return; }
        location.reload();
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`

// ScriptHandler serves Script.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(Script))
	})
}

// InjectScript adds the client script tag before </body> in HTML responses.
// Responses larger than the buffer limit pass through untouched.
func InjectScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !(p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")) {
			next.ServeHTTP(w, r)
			return
		}
		inj := &injector{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(inj, r)
		inj.finalize()
	})
}

type injector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
}

func (l *injector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *injector) Write(data []byte) (int, error) {
	if !l.headerWritten && !l.passthrough && l.buffer == nil {
		ct := l.Header().Get("Content-Type")
		if l.statusCode != http.StatusOK || (ct != "" && !strings.Contains(ct, "text/html")) {
			l.passthrough = true
			l.ResponseWriter.WriteHeader(l.statusCode)
			l.headerWritten = true
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 64*1024)
	}
	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}
	if len(l.buffer)+len(data) > maxInjectBuffer {
		l.passthrough = true
		l.Header().Del("Content-Length")
		l.ResponseWriter.WriteHeader(l.statusCode)
		l.headerWritten = true
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
		}
		return l.ResponseWriter.Write(data)
	}
	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

func (l *injector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}
	tag := `<script async src="` + ScriptPath + `"></script>`
	page := string(l.buffer)
	if i := strings.LastIndex(strings.ToLower(page), "</body>"); i >= 0 {
		page = page[:i] + tag + page[i:]
	} else {
		page += tag
	}
	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write([]byte(page))
}
