package shield

import "net/http"

// HeadToGet serves HEAD requests through the GET handlers. The API
// registers its read routes with r.Get only, so a bare HEAD probe would
// draw a 405; rewriting the method before routing reuses those handlers.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
