package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"ping": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return "pong", nil
				},
			},
		},
	})
	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&reqBody)

		result := graphql.Do(graphql.Params{Schema: schema, RequestString: reqBody.Query})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}))
}

func TestLink_Fetch_Success(t *testing.T) {
	srv := newFixtureServer(t)
	defer srv.Close()

	link := NewLink(srv.Client(), Config{URL: srv.URL, Headers: map[string]string{"X-Test": "1"}})
	body, err := link.Fetch(context.Background(), []byte(`{"query":"{ping}"}`))
	require.NoError(t, err)

	var decoded struct {
		Data struct {
			Ping string `json:"ping"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "pong", decoded.Data.Ping)
}

func TestLink_Fetch_MissingURL(t *testing.T) {
	link := NewLink(nil, Config{URL: ""})
	_, err := link.Fetch(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestLink_Fetch_BadURLSentinel(t *testing.T) {
	link := NewLink(nil, Config{URL: BadURL})
	_, err := link.Fetch(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestLink_Fetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	link := NewLink(srv.Client(), Config{URL: srv.URL})
	_, err := link.Fetch(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestLink_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	link := NewLink(srv.Client(), Config{URL: srv.URL, Timeout: 10 * time.Millisecond})
	_, err := link.Fetch(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLink_Fetch_ForwardsHeaders(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	link := NewLink(srv.Client(), Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer xyz"}})
	_, err := link.Fetch(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", seen)
}

func TestDefaultTimeout(t *testing.T) {
	link := NewLink(nil, Config{URL: "https://example.com/graphql"})
	assert.Equal(t, DefaultTimeout, link.cfg.Timeout)
}
