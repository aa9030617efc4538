package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/adjust"
	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

func sampleTable() Table {
	return Table{
		Columns: []string{"symbol", "close", "status"},
		Rows: [][]string{
			{"CN:STOCK:SH600000", "10.5", "OK"},
			{"CN:STOCK:SZ000001", "3.2", "WARN"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	f, err = ParseFormat("JSONL")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONL, f)

	_, err = ParseFormat("csv")
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestRenderTableAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleTable(), FormatTable, false))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "symbol"))
	assert.Contains(t, lines[1], "CN:STOCK:SH600000")
	// Columns align: "close" starts at the same offset in every line.
	offset := strings.Index(lines[0], "close")
	assert.Equal(t, offset, strings.Index(lines[1], "10.5"))
}

func TestRenderJSONLPreservesColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleTable(), FormatJSONL, false))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"symbol":`), "first key follows column order")
	assert.True(t, strings.Contains(lines[0], `"close":"10.5"`))

	var row map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Equal(t, "WARN", row["status"])
}

func TestWriteErrorRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	err := errs.Provider("alpha_vantage", "upstream rejected request", map[string]any{
		"api_key": "super-secret",
		"symbol":  "AAPL",
	})
	WriteError(&buf, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "PROVIDER", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "REDACTED", details["api_key"])
	assert.Equal(t, "AAPL", details["symbol"])
}

func TestWriteErrorPlainError(t *testing.T) {
	var buf bytes.Buffer
	WriteError(&buf, assert.AnError)

	var body map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "SYSTEM", body["code"])
}

func TestPointsTableColumns(t *testing.T) {
	points := []models.DataPoint{{
		Symbol: "CN:STOCK:SH600000", Market: models.MarketCN,
		Timestamp: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Close:     models.Dec("10.5"), Provider: "akshare",
	}}
	tbl := PointsTable(points)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "CN:STOCK:SH600000", tbl.Rows[0][0])
	assert.Equal(t, "2024-06-03T00:00:00Z", tbl.Rows[0][1])
	assert.Equal(t, "", tbl.Rows[0][2], "absent open renders empty")
	assert.Equal(t, "10.5", tbl.Rows[0][5])
}

func TestAdjustTableColumns(t *testing.T) {
	res := adjust.Result{
		Version: "v1:abcdef012345",
		Rows: []adjust.Row{{
			Date:      time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			CloseRaw:  models.Dec("10"),
			CloseQFQ:  models.Dec("4.9"),
			CloseHFQ:  models.Dec("10"),
			FactorQFQ: decimal.RequireFromString("0.49"),
			FactorHFQ: decimal.NewFromInt(1),
		}},
	}
	tbl := AdjustTable(res)
	assert.Equal(t, []string{
		"date", "close_raw", "close_qfq", "close_hfq",
		"factor_qfq", "factor_hfq", "version",
	}, tbl.Columns)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "2024-06-03", tbl.Rows[0][0])
	assert.Equal(t, "4.9", tbl.Rows[0][2])
	assert.Equal(t, "0.49", tbl.Rows[0][4])
	assert.Equal(t, "v1:abcdef012345", tbl.Rows[0][6])
}
