package labels

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"LIBRA-backend/internal/library/circulation"
)

type fakeItems map[string]*circulation.Item

func (f fakeItems) GetItem(_ context.Context, id string) (*circulation.Item, error) {
	it, ok := f[id]
	if !ok {
		return nil, circulation.NewNotFoundError(circulation.KindItem, id)
	}
	return it, nil
}

func catalogue() fakeItems {
	return fakeItems{
		"a": {ID: "a", Title: "吾輩は猫である", Author: "夏目漱石", Barcode: "B-0001", Condition: circulation.ConditionGood},
		"b": {ID: "b", Title: "Dune, Part One", Author: "Frank Herbert", ISBN: "9780441172719", Condition: circulation.ConditionExcellent},
	}
}

func TestExportUTF8WithHeader(t *testing.T) {
	svc := NewService(catalogue())

	res, err := svc.Export(context.Background(), ExportRequest{ItemIDs: []string{"b", "b", " "}, Encoding: "UTF-8", Header: true})
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8, res.Encoding)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t,
		"title,author,barcode,isbn,condition\n\"Dune, Part One\",Frank Herbert,,9780441172719,4 - Excellent\n",
		string(res.Data))
}

func TestExportShiftJIS(t *testing.T) {
	svc := NewService(catalogue())

	res, err := svc.Export(context.Background(), ExportRequest{ItemIDs: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, EncodingShiftJIS, res.Encoding)
	assert.NotContains(t, string(res.Data), "吾輩", "output must not be UTF-8")

	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(res.Data)
	require.NoError(t, err)
	assert.Equal(t, "吾輩は猫である,夏目漱石,B-0001,,3 - Good\n", string(decoded))
}

func TestExportErrors(t *testing.T) {
	svc := NewService(catalogue())
	ctx := context.Background()

	_, err := svc.Export(ctx, ExportRequest{ItemIDs: []string{"a"}, Encoding: "ebcdic"})
	assert.Equal(t, 400, toHTTPStatus(err))

	_, err = svc.Export(ctx, ExportRequest{ItemIDs: []string{}})
	assert.Equal(t, 400, toHTTPStatus(err))

	_, err = svc.Export(ctx, ExportRequest{ItemIDs: []string{"a", "zzz"}})
	assert.Equal(t, 404, toHTTPStatus(err))
}

func TestWriteCSVSkipsUnchecked(t *testing.T) {
	rows := []Row{
		{Checked: true, Title: "kept"},
		{Checked: false, Title: "skipped"},
		{Checked: true},
	}
	assert.Equal(t, 1, countPrintable(rows))

	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, rows, EncodingUTF8, false))
	assert.Equal(t, "kept,,,,\n,,,,\n", buf.String())

	assert.Error(t, writeCSV(&buf, rows, Encoding("latin1"), false))
}

func TestExportHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, NewService(catalogue()))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/labels/export", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"item_ids":["a","b"],"encoding":"utf-8"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "2", w.Header().Get("X-Label-Count"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "labels.csv")

	w = post(`{"item_ids":["missing"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body errDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeNotFound, body.Error.Code)

	w = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
