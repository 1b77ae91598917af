package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"talentgate/internal/audit"
	audithandler "talentgate/internal/audit/handler"
	"talentgate/internal/domain"
	"talentgate/internal/jwtauth"
	"talentgate/internal/policy"
	policyhandler "talentgate/internal/policy/handler"
	"talentgate/internal/profile"
	"talentgate/internal/profile/crypto"
	profilehandler "talentgate/internal/profile/handler"
	profilestore "talentgate/internal/profile/store"
	"talentgate/internal/ratelimit"
	"talentgate/internal/ratelimit/store/bucket"
)

// RouterSuite exercises the assembled HTTP surface with real in-memory
// components, no mocks.
type RouterSuite struct {
	suite.Suite
	router     http.Handler
	records    *profilestore.InMemoryStore
	auditStore *audit.InMemoryStore
	tokens     *jwtauth.Service
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.records = profilestore.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()

	auditor, err := audit.NewLogger(s.auditStore)
	s.Require().NoError(err)

	limits := domain.ProviderLimits{
		DefaultBucket:  domain.BucketConfig{Capacity: 100, RefillRate: 10},
		DefaultBreaker: domain.BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second},
		OutcomeTimeout: time.Minute,
	}
	limiter, err := ratelimit.New(bucket.NewInMemoryStore(), limits)
	s.Require().NoError(err)

	policies := domain.PolicyTable{
		Regions: map[string]domain.RegionPolicy{
			"EU": {
				RetentionDays:            180,
				NotificationRequired:     true,
				NotificationWindow:       30 * 24 * time.Hour,
				ConsentRequiredForReveal: true,
			},
		},
		Default: domain.RegionPolicy{RetentionDays: 365},
	}

	engine, err := policy.New(s.records, limiter, auditor, policies)
	s.Require().NoError(err)

	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	sealer, err := crypto.NewSealerFromBase64(key)
	s.Require().NoError(err)

	profiles, err := profile.New(s.records, sealer, policies)
	s.Require().NoError(err)

	s.tokens = jwtauth.NewService("test-signing-key", "talentgate", "talentgate-api")

	s.router = NewRouter(Deps{
		Policy:      policyhandler.New(engine, logger),
		Profile:     profilehandler.New(profiles, limiter, auditor, logger),
		Audit:       audithandler.New(auditor, logger),
		Validator:   jwtauth.NewAdapter(s.tokens),
		RecordStore: s.records,
		AuditTrail:  auditor,
		Logger:      logger,
	})
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&out))
	return out
}

func (s *RouterSuite) TestAuthorizeDiscovery() {
	w := s.do(http.MethodPost, "/v1/authorize", map[string]any{
		"kind":     "discovery",
		"provider": "providerX",
		"region":   "US",
	}, nil)

	s.Require().Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal("approved", body["outcome"])
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestAuthorizeRejectsMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/authorize", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Require().Equal(http.StatusBadRequest, w.Code)
	s.Equal("bad_request", s.decode(w)["error"])
}

func (s *RouterSuite) TestAcquisitionFlow() {
	// Discovery outcome creates the record.
	w := s.do(http.MethodPost, "/v1/outcome", map[string]any{
		"kind":       "discovery",
		"provider":   "providerX",
		"region":     "EU",
		"success":    true,
		"source_url": "https://providerx.example/people/ada",
		"payload":    []byte("discovery payload"),
	}, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	record := s.decode(w)
	canonicalID := record["canonical_id"].(string)
	s.Equal("discovered", record["stage"])

	// Reveal authorization returns obligations for the EU window.
	w = s.do(http.MethodPost, "/v1/authorize", map[string]any{
		"kind":         "reveal",
		"provider":     "providerX",
		"region":       "EU",
		"canonical_id": canonicalID,
		"consent_flag": true,
	}, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	decision := s.decode(w)
	s.Equal("approved", decision["outcome"])
	obligations := decision["obligations"].(map[string]any)
	s.Equal(true, obligations["set_enriched_at"])

	// Reveal outcome applies the obligations.
	w = s.do(http.MethodPost, "/v1/outcome", map[string]any{
		"kind":         "reveal",
		"provider":     "providerX",
		"region":       "EU",
		"success":      true,
		"canonical_id": canonicalID,
		"payload":      []byte("full profile"),
		"obligations":  obligations,
	}, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	record = s.decode(w)
	s.Equal("revealed", record["stage"])
	s.NotNil(record["enriched_at"])
	s.NotNil(record["notification_due_at"])

	// Notification acknowledgement stops the deadline. The canonical ID is a
	// URL, so the path segment is escaped.
	w = s.do(http.MethodPost, "/v1/records/"+url.PathEscape(canonicalID)+"/notification", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	record = s.decode(w)
	s.Equal(true, record["notification_sent"])
}

func (s *RouterSuite) TestOutcomeFailureFeedsBreakerOnly() {
	w := s.do(http.MethodPost, "/v1/outcome", map[string]any{
		"kind":     "discovery",
		"provider": "providerX",
		"region":   "EU",
		"success":  false,
	}, nil)
	s.Require().Equal(http.StatusNoContent, w.Code)
	s.Equal(0, s.records.Len())
}

func (s *RouterSuite) TestOutcomeRejectsUnknownKind() {
	w := s.do(http.MethodPost, "/v1/outcome", map[string]any{
		"kind":     "enumerate",
		"provider": "providerX",
		"success":  true,
	}, nil)
	s.Require().Equal(http.StatusBadRequest, w.Code)
	s.Equal("invalid_input", s.decode(w)["error"])
}

func (s *RouterSuite) TestAuditExportRequiresToken() {
	w := s.do(http.MethodGet, "/v1/audit/export?from_seq=1&to_seq=10", nil, nil)
	s.Require().Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterSuite) TestAuditExportRejectsMissingScope() {
	token, err := s.tokens.GenerateToken("operator-1", []string{"outcome:report"}, time.Hour)
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/v1/audit/export?from_seq=1&to_seq=10", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	s.Require().Equal(http.StatusForbidden, w.Code)
}

func (s *RouterSuite) TestAuditExportReturnsTrail() {
	for i := 0; i < 3; i++ {
		w := s.do(http.MethodPost, "/v1/authorize", map[string]any{
			"kind":     "discovery",
			"provider": "providerX",
			"region":   "US",
		}, nil)
		s.Require().Equal(http.StatusOK, w.Code)
	}

	token, err := s.tokens.GenerateToken("operator-1", []string{ScopeAuditExport}, time.Hour)
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/v1/audit/export?from_seq=1&to_seq=100", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	s.Require().Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal(float64(3), body["count"])
}

func (s *RouterSuite) TestAuditExportRejectsMissingWindow() {
	token, err := s.tokens.GenerateToken("operator-1", []string{ScopeAuditExport}, time.Hour)
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/v1/audit/export", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	s.Require().Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestHealthz() {
	w := s.do(http.MethodGet, "/healthz", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("ok", s.decode(w)["status"])
}

func (s *RouterSuite) TestMetricsEndpoint() {
	w := s.do(http.MethodGet, "/metrics", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestUnknownRouteIs404() {
	w := s.do(http.MethodGet, fmt.Sprintf("/v1/%s", "nope"), nil, nil)
	s.Require().Equal(http.StatusNotFound, w.Code)
}
