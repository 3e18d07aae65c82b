package metrics_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kubev2v/document-review/pkg/metrics"
)

var _ = Describe("http middleware", func() {
	It("records requests by route pattern", func() {
		m := metrics.NewMiddleware("test")
		router := chi.NewRouter()
		router.Use(m.Handler)
		router.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		for _, path := range []string{"/jobs/1", "/jobs/2", "/unknown"} {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		}

		collectors := m.Collectors()
		Expect(testutil.CollectAndCount(collectors[0])).To(Equal(1))
		Expect(testutil.CollectAndCount(collectors[1])).To(Equal(1))
	})
})
