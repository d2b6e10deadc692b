package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	testingutil "github.com/amirphl/kartu-tanda-boga/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMembershipClient(srv *httptest.Server) *MembershipClientImpl {
	return NewMembershipClient(srv.URL+"/membership-card", srv.URL+"/membership-card/create", "X-BOGAMBC-Key", "secret-key", 5*time.Second)
}

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("X-BOGAMBC-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"image": "https://cdn.example.com/japanese-wave.png"},
			{"image": "https://cdn.example.com/colorful.png", "title": "Rainbow"},
			{"image": "https://cdn.example.com/nature-green.png"},
			{"image": "https://cdn.example.com/plain.png", "title": "  "}
		]`)
	}))
	defer srv.Close()

	cards, err := newTestMembershipClient(srv).FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 4)

	assert.Equal(t, models.CardDesign{ID: 1, Name: "JAPANESE", ImageURL: "https://cdn.example.com/japanese-wave.png", Tier: "basic"}, cards[0])
	assert.Equal(t, "Rainbow", cards[1].Name)
	assert.Equal(t, "NATURAL", cards[2].Name)
	assert.Equal(t, "CARD", cards[3].Name)
	assert.Equal(t, 4, cards[3].ID)
}

func TestFetchCatalogHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestMembershipClient(srv).FetchCatalog(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
}

func TestCardNameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://x/japan.png":       "JAPANESE",
		"https://x/japanese.png":    "JAPANESE",
		"https://x/colorful.png":    "COLORFULL",
		"https://x/color-burst.png": "COLORFULL",
		"https://x/natural.png":     "NATURAL",
		"https://x/nature.png":      "NATURAL",
		"https://x/modern.png":      "CARD",
		"":                          "CARD",
	}
	for url, want := range tests {
		assert.Equal(t, want, CardNameFromURL(url), url)
	}
}

func TestSubmitSuccess(t *testing.T) {
	values := testingutil.ValidFormValues(time.Now())
	card := testingutil.SampleCatalog(5)[2]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/membership-card/create", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("X-BOGAMBC-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, values.Name, body["name"])
		assert.Equal(t, values.Birthday, body["birthday"])
		assert.Equal(t, values.Phone, body["phone"])
		assert.Equal(t, values.Email, body["email"])
		assert.Equal(t, card.ImageURL, body["cardImage"])
		assert.Equal(t, values.PhotoFile.Base64(), body["profileImage"])
		assert.False(t, strings.HasPrefix(body["profileImage"], "data:"))

		_, _ = io.WriteString(w, `{"status":"Success","message":"ok","data":{
			"name":"Siti Rahmawati","serial":"KTB0001","point":50,"tierTitle":"Silver",
			"isEligibleForCoupon":true,"coupons":["Welcome", {"name":"Free drink","image":"https://x/c.png"}],
			"profileImage":"https://x/p.jpg","cardImage":"https://x/c.png"}}`)
	}))
	defer srv.Close()

	result, err := newTestMembershipClient(srv).Submit(context.Background(), values, card)
	require.NoError(t, err)
	assert.Equal(t, "KTB0001", result.Serial)
	assert.Equal(t, 50, result.Point)
	assert.Equal(t, "Silver", result.TierTitle)
	require.Len(t, result.Coupons, 2)
	assert.Equal(t, "Welcome", result.Coupons[0].Name)
	assert.Equal(t, "Free drink", result.Coupons[1].Name)
}

func TestSubmitFailures(t *testing.T) {
	values := testingutil.ValidFormValues(time.Now())
	card := testingutil.SampleCatalog(1)[0]

	tests := []struct {
		name        string
		handler     http.HandlerFunc
		check       func(t *testing.T, err error)
		wantMessage string
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, 500, httpErr.Status)
				assert.True(t, IsHTTPError(err))
			},
			wantMessage: "Gagal membuat membership: HTTP error! status: 500",
		},
		{
			name: "api rejects",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"status":"Failed","message":"Phone already registered"}`)
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "Phone already registered", apiErr.Message)
				assert.True(t, IsAPIError(err))
			},
			wantMessage: "Gagal membuat membership: Phone already registered",
		},
		{
			name: "api rejects without message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"status":"Error"}`)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsAPIError(err))
			},
			wantMessage: "Gagal membuat membership: Failed to create membership",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{not json`)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsNetworkError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			result, err := newTestMembershipClient(srv).Submit(context.Background(), values, card)
			assert.Nil(t, result)
			require.Error(t, err)
			tt.check(t, err)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, SubmissionFailureMessage(err))
			}
		})
	}
}

func TestSubmitNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestMembershipClient(srv)
	srv.Close()

	_, err := client.Submit(context.Background(), testingutil.ValidFormValues(time.Now()), testingutil.SampleCatalog(1)[0])
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.True(t, strings.HasPrefix(SubmissionFailureMessage(err), SubmissionFailurePrefix))
	assert.False(t, errors.Is(err, context.Canceled))
}
