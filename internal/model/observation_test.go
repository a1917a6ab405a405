package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactObservation(t *testing.T) {
	t.Parallel()

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		obs     FactObservation
		wantErr bool
	}{
		{"valid", FactObservation{Concept: "us-gaap:Revenues", Unit: "USD", Value: 1, End: end}, false},
		{"nan", FactObservation{Concept: "us-gaap:Revenues", Unit: "USD", Value: math.NaN(), End: end}, true},
		{"inf", FactObservation{Concept: "us-gaap:Revenues", Unit: "USD", Value: math.Inf(-1), End: end}, true},
		{"missing end", FactObservation{Concept: "us-gaap:Revenues", Unit: "USD", Value: 1}, true},
		{"missing concept", FactObservation{Unit: "USD", Value: 1, End: end}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFactObservation(tt.obs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewFactObservation_NonFiniteSentinel(t *testing.T) {
	t.Parallel()

	_, err := NewFactObservation(FactObservation{Concept: "x", Value: math.Inf(1), End: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestFactSet_UnitsPreferredFirst(t *testing.T) {
	t.Parallel()

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	fs := FactSet{}
	fs.Add(FactObservation{Concept: "us-gaap:Revenues", Unit: "EUR", Value: 1, End: end})
	fs.Add(FactObservation{Concept: "us-gaap:Revenues", Unit: "USD", Value: 2, End: end})
	fs.Add(FactObservation{Concept: "us-gaap:Revenues", Unit: "CAD", Value: 3, End: end})

	assert.Equal(t, []string{"USD", "CAD", "EUR"}, fs.Units("us-gaap:Revenues", "USD"))
	assert.Equal(t, []string{"CAD", "EUR", "USD"}, fs.Units("us-gaap:Revenues", "JPY"))
	assert.True(t, fs.Has("us-gaap:Revenues"))
	assert.Len(t, fs.Observations("us-gaap:Revenues", "USD"), 1)
}

func TestFactSet_ConceptsSortedAndNamespaces(t *testing.T) {
	t.Parallel()

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	fs := FactSet{}
	fs.Add(FactObservation{Concept: "us-gaap:Revenues", Unit: "USD", Value: 1, End: end})
	fs.Add(FactObservation{Concept: "ifrs-full:Revenue", Unit: "USD", Value: 1, End: end})
	fs.Add(FactObservation{Concept: "dei:EntityCommonStockSharesOutstanding", Unit: "shares", Value: 1, End: end})

	assert.Equal(t, []string{
		"dei:EntityCommonStockSharesOutstanding",
		"ifrs-full:Revenue",
		"us-gaap:Revenues",
	}, fs.Concepts())
	ns := fs.Namespaces()
	assert.True(t, ns["ifrs-full"])
	assert.True(t, ns["us-gaap"])
}

func TestSplitAndQualifyConcept(t *testing.T) {
	t.Parallel()

	ns, tag := SplitConcept("ifrs-full:Revenue")
	assert.Equal(t, "ifrs-full", ns)
	assert.Equal(t, "Revenue", tag)

	ns, tag = SplitConcept("Revenues")
	assert.Equal(t, "us-gaap", ns)
	assert.Equal(t, "Revenues", tag)

	assert.Equal(t, "us-gaap:Assets", QualifyConcept("Assets"))
	assert.Equal(t, "ifrs-full:Assets", QualifyConcept("ifrs-full:Assets"))
}
