package mockserver_test

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-consumer/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-consumer/internal/app/mockserver"
	"github.com/form3tech-oss/pact-consumer/pkg/dsl"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pact-foundation/pact-go/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPact(t *testing.T) *pact.Pact {
	pb := dsl.NewPact("web", "status-service")
	pb.AddInteraction().
		UponReceiving("a status request").
		WithRequest(dsl.Request{Method: "GET", Path: dsl.String("/status")}).
		WillRespondWith(dsl.Response{
			Status: 200,
			Body:   dsl.NewObject().StringType("status", "up"),
		})
	pb.AddInteraction().
		UponReceiving("a search for open orders").
		WithRequest(dsl.Request{
			Method: "GET",
			Path:   dsl.String("/orders"),
			Query:  map[string]dsl.Matcher{"status": dsl.String("open")},
		}).
		WillRespondWith(dsl.Response{Status: 204})
	pb.AddInteraction().
		UponReceiving("an order is created").
		WithRequest(dsl.Request{
			Method:  "POST",
			Path:    dsl.String("/orders"),
			Headers: map[string]dsl.Matcher{"Content-Type": dsl.String("application/json")},
			Body:    dsl.NewObject().IntegerType("id", 7),
		}).
		WillRespondWith(dsl.Response{Status: 201})
	p, err := pb.Build()
	require.NoError(t, err)
	return p
}

func startServer(t *testing.T, p *pact.Pact, config mockserver.Config) *mockserver.Server {
	s := mockserver.New(p.Interactions, config)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func get(t *testing.T, url string) (int, string) {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	content, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(content)
}

func postOrder(t *testing.T, base string, order string) int {
	res, err := http.Post(base+"/orders", "application/json", strings.NewReader(order))
	require.NoError(t, err)
	res.Body.Close()
	return res.StatusCode
}

func stopAndVerify(t *testing.T, s *mockserver.Server) matching.Mismatches {
	require.NoError(t, s.Stop())
	mismatches, err := s.Verify()
	require.NoError(t, err)
	return mismatches
}

func TestServesDeclaredResponses(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	assert.Equal(t, mockserver.Running, s.State())
	assert.NotZero(t, s.Port())
	assert.True(t, strings.HasPrefix(s.URL(), "http://127.0.0.1:"))

	res, err := http.Get(s.URL() + "/status")
	require.NoError(t, err)
	content, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"up"}`, string(content))

	status, _ := get(t, s.URL()+"/orders?status=open")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, http.StatusCreated, postOrder(t, s.URL(), `{"id": 99}`))

	assert.Empty(t, stopAndVerify(t, s))
}

func TestUnexpectedAndMissingRequests(t *testing.T) {
	pb := dsl.NewPact("web", "status-service")
	pb.AddInteraction().
		UponReceiving("a status request").
		WithRequest(dsl.Request{Method: "GET", Path: dsl.String("/status")}).
		WillRespondWith(dsl.Response{Status: 200})
	p, err := pb.Build()
	require.NoError(t, err)
	s := startServer(t, p, mockserver.Config{})

	status, content := get(t, s.URL()+"/missing")
	assert.Equal(t, http.StatusInternalServerError, status)
	var apiErr httpresponse.APIError
	require.NoError(t, json.Unmarshal([]byte(content), &apiErr))
	assert.Equal(t, "unexpected request GET /missing", apiErr.ErrorMessage)

	mismatches := stopAndVerify(t, s)
	require.Len(t, mismatches, 2)
	assert.Equal(t, matching.KindMissingRequest, mismatches[0].Kind)
	assert.Equal(t, "/status", mismatches[0].Path)
	assert.Equal(t, "a status request", mismatches[0].Interaction)
	assert.Equal(t, matching.KindUnexpectedRequest, mismatches[1].Kind)
	assert.Equal(t, "/missing", mismatches[1].Path)
}

func TestUnexpectedStatusIsConfigurable(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{UnexpectedStatus: http.StatusTeapot})
	status, _ := get(t, s.URL()+"/nowhere")
	assert.Equal(t, http.StatusTeapot, status)
}

func TestPartialMatchesAreReportedUnderTheirInteraction(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})

	status, content := get(t, s.URL()+"/orders?status=closed")
	assert.Equal(t, http.StatusInternalServerError, status)
	var apiErr httpresponse.APIError
	require.NoError(t, json.Unmarshal([]byte(content), &apiErr))
	require.NotEmpty(t, apiErr.Mismatches)
	assert.Equal(t, matching.KindQuery, apiErr.Mismatches[0].Kind)

	assert.Equal(t, http.StatusInternalServerError, postOrder(t, s.URL(), `{"id": "seven"}`))

	mismatches := stopAndVerify(t, s)
	assert.Empty(t, mismatches.OfKind(matching.KindUnexpectedRequest))

	search := mismatches.OfKind(matching.KindQuery)
	require.Len(t, search, 1)
	assert.Equal(t, "a search for open orders", search[0].Interaction)
	assert.Equal(t, "status", search[0].Path)

	create := mismatches.OfKind(matching.KindBody)
	require.Len(t, create, 1)
	assert.Equal(t, "an order is created", create[0].Interaction)
	assert.Equal(t, "$.id", create[0].Path)

	missing := mismatches.OfKind(matching.KindMissingRequest)
	require.Len(t, missing, 1)
	assert.Equal(t, "a status request", missing[0].Interaction)
}

func TestConcurrentRequestsAreAllCaptured(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})

	const requests = 20
	var wg sync.WaitGroup
	for n := 0; n < requests; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := http.Get(s.URL() + "/status")
			if assert.NoError(t, err) {
				res.Body.Close()
			}
		}()
	}
	wg.Wait()

	captures := s.Captures()
	require.Len(t, captures, requests)
	for i, c := range captures {
		assert.Equal(t, i+1, c.Sequence)
		assert.Equal(t, "GET /status", c.String())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	get(t, s.URL()+"/status")

	require.NoError(t, s.Stop())
	first, err := s.Verify()
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	assert.Equal(t, mockserver.Stopped, s.State())
	second, err := s.Verify()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVerifyNeedsAStoppedServer(t *testing.T) {
	s := mockserver.New(statusPact(t).Interactions, mockserver.Config{})
	_, err := s.Verify()
	assert.True(t, errors.Is(err, mockserver.ErrNotStopped))

	require.NoError(t, s.Start())
	defer s.Stop()
	_, err = s.Verify()
	assert.True(t, errors.Is(err, mockserver.ErrNotStopped))
}

func TestStartTwiceFails(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	assert.Error(t, s.Start())
	assert.Equal(t, mockserver.Running, s.State())
}

func TestPortInUse(t *testing.T) {
	port, err := utils.GetFreePort()
	require.NoError(t, err)

	first := startServer(t, statusPact(t), mockserver.Config{Port: port})
	assert.Equal(t, port, first.Port())

	second := mockserver.New(statusPact(t).Interactions, mockserver.Config{Port: port})
	err = second.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mockserver.ErrPortInUse), err.Error())
	assert.Equal(t, mockserver.Stopped, second.State())
}

func TestQueryCapturedRequests(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	postOrder(t, s.URL(), `{"id": 7}`)
	get(t, s.URL()+"/orders?status=open&filter[region]=eu")

	tests := []struct {
		name     string
		expr     string
		expected interface{}
	}{
		{name: "first method", expr: "$[0].method", expected: "POST"},
		{name: "json body field", expr: "$[0].body.id", expected: float64(7)},
		{name: "all paths", expr: "$[*].path", expected: []interface{}{"/orders", "/orders"}},
		{name: "nested query", expr: "$[1].query.filter.region", expected: "eu"},
		{name: "header", expr: "$[0].headers['Content-Type']", expected: "application/json"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			v, err := s.Query(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}

	_, err := s.Query("$[")
	assert.Error(t, err)
}

func TestWaitForRequests(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})

	go func() {
		time.Sleep(100 * time.Millisecond)
		res, err := http.Get(s.URL() + "/status")
		if err == nil {
			res.Body.Close()
		}
	}()

	assert.True(t, s.WaitForRequests(1, 5*time.Second))
	assert.False(t, s.WaitForRequests(2, 200*time.Millisecond))
}

func TestWaitForInteractions(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	get(t, s.URL()+"/status")
	assert.False(t, s.WaitForInteractions(200*time.Millisecond))

	get(t, s.URL()+"/orders?status=open")
	postOrder(t, s.URL(), `{"id": 1}`)
	assert.True(t, s.WaitForInteractions(time.Second))
}

func TestServesOverTLS(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{TLS: true})
	assert.True(t, strings.HasPrefix(s.URL(), "https://"))

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}}
	res, err := client.Get(fmt.Sprintf("%s/status", s.URL()))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	assert.Empty(t, stopAndVerify(t, s).OfKind(matching.KindUnexpectedRequest))
}

func TestRestartClearsCaptures(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	get(t, s.URL()+"/status")
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start())
	assert.Zero(t, s.RequestCount())
}

func TestPreviewWhileRunning(t *testing.T) {
	s := startServer(t, statusPact(t), mockserver.Config{})
	get(t, s.URL()+"/status")

	preview := s.Preview()
	assert.Len(t, preview.OfKind(matching.KindMissingRequest), 2)
	assert.Empty(t, preview.OfKind(matching.KindUnexpectedRequest))
	assert.Equal(t, mockserver.Running, s.State())
}
