package main

import (
	"bytes"
	"testing"
	"time"

	"coffeeshop/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReview_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReview(&buf, nil))
	assert.Equal(t, "no orders need review\n", buf.String())
}

func TestRenderReview_Rows(t *testing.T) {
	var buf bytes.Buffer
	err := renderReview(&buf, []usecase.OrderOutput{
		{
			ID:        12,
			UserID:    3,
			Reference: "ORDER_3_1700000000",
			Total:     decimal.RequireFromString("12900.5"),
			Currency:  "CRC",
			CreatedAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ORDER_3_1700000000")
	assert.Contains(t, out, "12900.50 CRC")
	assert.Contains(t, out, "2025-03-01 09:30")
}
