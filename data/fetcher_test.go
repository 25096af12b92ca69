package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"houseprice/errs"
)

const sampleCSV = `"crim","zn","indus","chas","nox","rm","age","dis","rad","tax","ptratio","b","lstat","medv"
0.00632,18,2.31,0,0.538,6.575,65.2,4.09,1,296,15.3,396.9,4.98,24
0.02731,0,7.07,0,0.469,6.421,78.9,4.9671,2,242,17.8,396.9,9.14,21.6
0.02729,0,7.07,0,0.469,7.185,61.1,4.9671,2,242,17.8,392.83,4.03,34.7
`

func TestProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	raw := filepath.Join(t.TempDir(), "raw", "boston_housing.csv")
	p := NewProvider(ProviderConfig{URL: srv.URL, RawPath: raw}, BostonHousing, nil)
	table, err := p.Fetch(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, table.Len(), 3)
	assert.DeepEqual(t, table.Columns, BostonHousing.Columns())
	assert.Equal(t, table.Rows[0][5], 6.575)
	assert.Equal(t, table.Rows[2][13], 34.7)

	written, err := os.ReadFile(raw)
	assert.NilError(t, err)
	assert.Equal(t, string(written), sampleCSV)
}

func TestProviderFetchStatusIsTransferError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{URL: srv.URL}, BostonHousing, nil)
	_, err := p.Fetch(context.Background())
	assert.Assert(t, errors.Is(err, errs.Transfer), "got %v", err)
}

func TestProviderFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProvider(ProviderConfig{URL: url, Timeout: time.Second}, BostonHousing, nil)
	_, err := p.Fetch(context.Background())
	assert.Assert(t, errors.Is(err, errs.Transfer), "got %v", err)
}

func TestProviderFetchRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{URL: srv.URL, Retries: 2, RetryBackoff: time.Millisecond}, BostonHousing, nil)
	table, err := p.Fetch(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, table.Len(), 3)
	assert.Equal(t, atomic.LoadInt32(&calls), int32(2))
}

func TestProviderFetchNoRetryByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{URL: srv.URL}, BostonHousing, nil)
	_, err := p.Fetch(context.Background())
	assert.Assert(t, errors.Is(err, errs.Transfer))
	assert.Equal(t, atomic.LoadInt32(&calls), int32(1))
}

func TestProviderFetchLatin1(t *testing.T) {
	// 0xe9 is "é" in latin1 and is invalid UTF-8 on its own.
	body := []byte("crim,zn,indus,chas,nox,rm,age,dis,rad,tax,ptratio,b,lstat,medv,note\n" +
		"1,2,3,0,0.5,6,60,4,1,300,15,390,5,22,caf\xe9\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{URL: srv.URL, Encoding: "latin1"}, BostonHousing, nil)
	table, err := p.Fetch(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, table.Len(), 1)
	assert.Equal(t, table.Rows[0][13], 22.0)
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"missing column", "crim,zn\n1,2\n"},
		{"not a number", strings.Replace(sampleCSV, "6.575", "six", 1)},
		{"ragged row", sampleCSV + "1,2,3\n"},
		{"nan", strings.Replace(sampleCSV, "6.575", "NaN", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.body), BostonHousing)
			assert.Assert(t, errors.Is(err, errs.Parse), "got %v", err)
		})
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	header := strings.SplitN(sampleCSV, "\n", 2)[0] + "\n"
	table, err := ParseCSV(strings.NewReader(header), BostonHousing)
	assert.NilError(t, err)
	assert.Equal(t, table.Len(), 0)
}
