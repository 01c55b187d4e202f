package publisher_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/infra/publisher"
	"market-xbot/internal/usecase/publish"
)

var _ publish.Publisher = (*publisher.XClient)(nil)

func newClient(t *testing.T, srv *httptest.Server) *publisher.XClient {
	t.Helper()
	return publisher.NewXClient(context.Background(), srv.Client(), publisher.XConfig{
		ConsumerKey:    "consumer-key",
		ConsumerSecret: "consumer-secret",
		AccessToken:    "1234-access-token",
		AccessSecret:   "access-secret",
		BaseURL:        srv.URL + "/",
	}, nil)
}

// percentEncode is RFC 3986 encoding as used by OAuth 1.0a.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// parseOAuthHeader returns the decoded oauth_* parameters of an
// "OAuth k="v", ..." Authorization header.
func parseOAuthHeader(t *testing.T, header string) map[string]string {
	t.Helper()
	require.True(t, strings.HasPrefix(header, "OAuth "), "header %q", header)
	params := map[string]string{}
	for _, pair := range strings.Split(strings.TrimPrefix(header, "OAuth "), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		require.True(t, ok, "pair %q", pair)
		raw, err := url.PathUnescape(strings.Trim(v, `"`))
		require.NoError(t, err)
		params[k] = raw
	}
	return params
}

// expectedSignature recomputes the HMAC-SHA1 signature for a request without
// query or form parameters.
func expectedSignature(method, baseURL string, params map[string]string, consumerSecret, tokenSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "oauth_signature" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	base := method + "&" + percentEncode(baseURL) + "&" + percentEncode(strings.Join(pairs, "&"))

	mac := hmac.New(sha1.New, []byte(percentEncode(consumerSecret)+"&"+percentEncode(tokenSecret)))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

/* ───────── テスト ───────── */

func TestXClient_Publish_Success(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1850000000000000001","text":"hello"}}`)
	}))
	defer srv.Close()

	id, err := newClient(t, srv).Publish(context.Background(), "$AAPL 🐂 hello")
	require.NoError(t, err)
	assert.Equal(t, "1850000000000000001", id)
	assert.Equal(t, "$AAPL 🐂 hello", got["text"])
}

func TestXClient_Publish_SignsWithOAuth1UserContext(t *testing.T) {
	var (
		header string
		reqURL string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		reqURL = "http://" + r.Host + r.URL.Path
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"42"}}`)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	for i := 0; i < 2; i++ {
		_, err := c.Publish(context.Background(), "hello")
		require.NoError(t, err)

		params := parseOAuthHeader(t, header)
		assert.Equal(t, "consumer-key", params["oauth_consumer_key"])
		assert.Equal(t, "1234-access-token", params["oauth_token"])
		assert.Equal(t, "HMAC-SHA1", params["oauth_signature_method"])
		assert.Equal(t, "1.0", params["oauth_version"])
		assert.NotEmpty(t, params["oauth_nonce"])
		assert.NotEmpty(t, params["oauth_timestamp"])
		// the JSON body is not part of the signature base string
		assert.Equal(t,
			expectedSignature(http.MethodPost, reqURL, params, "consumer-secret", "access-secret"),
			params["oauth_signature"])
	}
}

func TestXClient_Publish_DeniedStatuses(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(status)
				_, _ = io.WriteString(w, `{"title":"Forbidden","detail":"You are not permitted to perform this action."}`)
			}))
			defer srv.Close()

			_, err := newClient(t, srv).Publish(context.Background(), "text")
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrPublishDenied)

			var apiErr *publisher.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Error(), "not permitted")
		})
	}
}

func TestXClient_Publish_OtherFailuresAreNotDenials(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := newClient(t, srv).Publish(context.Background(), "text")
			require.Error(t, err)
			assert.NotErrorIs(t, err, entity.ErrPublishDenied)

			var apiErr *publisher.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.False(t, apiErr.Denied())
			assert.Contains(t, apiErr.Error(), http.StatusText(status))
		})
	}
}

func TestXClient_Publish_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).Publish(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestXClient_Publish_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).Publish(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tweet id")
}

func TestXClient_ThroughGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out := publish.NewGate(newClient(t, srv), nil).Publish(context.Background(), "text")
	assert.Equal(t, publish.StatusDenied, out.Status)
	assert.False(t, out.Published())
}
