package registry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landreg/internal/model"
)

func TestNormalizePostcode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sw1a 1aa", "SW1A 1AA"},
		{"ec1a1bb", "EC1A 1BB"},
		{"", ""},
		{"  m1   1ae ", "M1 1AE"},
		{"b1\t1bb", "B1 1BB"},
		{"abc", "ABC"},
		{"ab", "AB"},
		{"w1a0ax", "W1A 0AX"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePostcode(tt.in), "input %q", tt.in)
	}
}

func TestNormalizePostcodeSingleSpaceBeforeInwardCode(t *testing.T) {
	for _, in := range []string{"sw1a1aa", " S W 1 A 1 A A ", "n11aa", "ABCDEFGH"} {
		got := NormalizePostcode(in)
		require.Greater(t, len(got), 3)
		assert.Equal(t, 1, strings.Count(got, " "), "got %q", got)
		assert.Equal(t, byte(' '), got[len(got)-4], "got %q", got)
	}
}

func TestFormatAddress(t *testing.T) {
	got := FormatAddress(model.LookupResult{
		SAON:     "Flat 2",
		PAON:     "10",
		Street:   "High St",
		Postcode: "SW1A 1AA",
	})
	assert.Equal(t, "Flat 2, 10, High St, SW1A 1AA", got)

	full := FormatAddress(model.LookupResult{
		PAON:     "4",
		Street:   "MILL LANE",
		Town:     "LEEDS",
		County:   "WEST YORKSHIRE",
		Postcode: "LS1 4AB",
	})
	assert.Equal(t, "4, MILL LANE, LEEDS, WEST YORKSHIRE, LS1 4AB", full)

	assert.Equal(t, "", FormatAddress(model.LookupResult{}))
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery("sw1a1aa", "  10 ")

	assert.Contains(t, q, `VALUES ?postcode {"SW1A 1AA"^^xsd:string}`)
	assert.Contains(t, q, `VALUES ?paon     {"10"^^xsd:string}`)
	assert.Contains(t, q, "ORDER BY DESC(?date)")
	assert.Contains(t, q, "prefix lrppi: <http://landregistry.data.gov.uk/def/ppi/>")
}

func TestBuildQueryEscapesLiterals(t *testing.T) {
	q := BuildQuery("sw1a1aa", `10"} ?x ?y {"`)

	assert.Contains(t, q, `{"10\"} ?x ?y {\""^^xsd:string}`)
}

const sampleResponse = `{
  "head": {"vars": ["paon","saon","street","town","county","postcode","amount","date","category"]},
  "results": {"bindings": [
    {
      "paon": {"type": "literal", "value": "10"},
      "saon": {"type": "literal", "value": "FLAT 2"},
      "street": {"type": "literal", "value": "HIGH STREET"},
      "town": {"type": "literal", "value": "LONDON"},
      "postcode": {"type": "literal", "value": "SW1A 1AA"},
      "amount": {"type": "typed-literal", "value": "450000"},
      "date": {"type": "typed-literal", "value": "2023-05-12"},
      "category": {"type": "literal", "value": "standard price paid transaction"}
    },
    {
      "paon": {"type": "literal", "value": "10"},
      "postcode": {"type": "literal", "value": "SW1A 1AA"},
      "amount": {"type": "typed-literal", "value": "300000"},
      "date": {"type": "typed-literal", "value": "2016-01-04"},
      "category": {"type": "literal", "value": "standard price paid transaction"}
    }
  ]}
}`

func TestClientLookup(t *testing.T) {
	var gotForm url.Values
	var gotAccept, gotUA, gotMethod string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Endpoint: srv.URL, UserAgent: "landreg-test"})
	results, err := c.Lookup(context.Background(), "sw1a1aa", " 10 ")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/sparql-results+json", gotAccept)
	assert.Equal(t, "landreg-test", gotUA)
	assert.Contains(t, gotForm.Get("query"), `"SW1A 1AA"^^xsd:string`)
	assert.Contains(t, gotForm.Get("query"), `"10"^^xsd:string`)

	require.Len(t, results, 2)
	assert.Equal(t, model.LookupResult{
		PAON:     "10",
		SAON:     "FLAT 2",
		Street:   "HIGH STREET",
		Town:     "LONDON",
		Postcode: "SW1A 1AA",
		Amount:   "450000",
		Date:     "2023-05-12",
		Category: "standard price paid transaction",
	}, results[0])
	assert.Equal(t, "", results[1].Street)
	assert.Equal(t, "2016-01-04", results[1].Date)
}

func TestClientLookupEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results": {"bindings": []}}`)
	}))
	defer srv.Close()

	results, err := NewClient(ClientOptions{Endpoint: srv.URL}).Lookup(context.Background(), "LS1 4AB", "4")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestClientLookupFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantStatus: 500},
		{name: "bad request", status: http.StatusBadRequest, body: "parse error", wantStatus: 400},
		{name: "malformed body", status: http.StatusOK, body: "<html>not json</html>", wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(ClientOptions{Endpoint: srv.URL}).Lookup(context.Background(), "SW1A 1AA", "10")
			require.Error(t, err)

			var lookupErr *LookupError
			require.True(t, errors.As(err, &lookupErr))
			assert.Equal(t, tt.wantStatus, lookupErr.StatusCode)
			assert.Equal(t, "10", lookupErr.DoorNumber)
		})
	}
}

func TestClientLookupTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	_, err := NewClient(ClientOptions{Endpoint: endpoint}).Lookup(context.Background(), "SW1A 1AA", "10")
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, 0, lookupErr.StatusCode)
	assert.NotNil(t, lookupErr.Unwrap())
}

func TestClientLookupInsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results": {"bindings": []}}`)
	}))
	defer srv.Close()

	_, err := NewClient(ClientOptions{Endpoint: srv.URL, InsecureSkipVerify: true}).Lookup(context.Background(), "SW1A 1AA", "10")
	require.NoError(t, err)

	_, err = NewClient(ClientOptions{Endpoint: srv.URL}).Lookup(context.Background(), "SW1A 1AA", "10")
	require.Error(t, err)
}

func TestClientCloseIdleConnections(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.WriteString(w, `{"results": {"bindings": []}}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Endpoint: srv.URL})
	_, err := c.Lookup(context.Background(), "SW1A 1AA", "10")
	require.NoError(t, err)

	c.CloseIdleConnections()
	_, err = c.Lookup(context.Background(), "SW1A 1AA", "10")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}
