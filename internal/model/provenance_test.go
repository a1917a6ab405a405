package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentOf(t *testing.T) {
	t.Parallel()

	c := ComponentOf(ResolvedMetric{
		Metric:  "Revenue",
		Concept: "us-gaap:Revenues",
		Value:   100,
		Source:  SourceAnnual,
	})
	assert.Equal(t, Component{Metric: "Revenue", Concept: "us-gaap:Revenues", Value: 100, Source: SourceAnnual}, c)
}

func TestComponent_JSONFieldNames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Component{Metric: "GrossProfit", Value: 4, Source: SourceAnnual})
	require.NoError(t, err)
	assert.JSONEq(t, `{"metric":"GrossProfit","value":4,"source_type":"annual"}`, string(data))
}
