package builtin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	chemerrors "chemagent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePubChem serves PUG REST property lookups from in-memory tables.
type fakePubChem struct {
	byName   map[string]map[string]any
	bySMILES map[string]map[string]any
	hits     atomic.Int32
}

func newFakePubChem(t *testing.T, f *fakePubChem) *PubChem {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		var row map[string]any
		switch {
		case strings.HasPrefix(r.URL.Path, "/compound/name/"):
			name := strings.TrimPrefix(r.URL.Path, "/compound/name/")
			name = name[:strings.Index(name, "/property/")]
			row = f.byName[name]
		case strings.HasPrefix(r.URL.Path, "/compound/smiles/property/"):
			row = f.bySMILES[r.URL.Query().Get("smiles")]
		}
		if row == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"Fault":{"Code":"PUGREST.NotFound","Message":"No CID found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"PropertyTable": map[string]any{"Properties": []any{row}}})
	}))
	t.Cleanup(server.Close)
	return NewPubChem(server.URL, server.Client(), nil)
}

func TestName2SMILES(t *testing.T) {
	pc := newFakePubChem(t, &fakePubChem{byName: map[string]map[string]any{
		"aspirin": {"CID": 2244, "SMILES": "CC(=O)OC1=CC=CC=C1C(=O)O"},
	}})
	tool := NewName2SMILES(pc)

	out, err := tool.Invoke(context.Background(), " aspirin ", "")
	require.NoError(t, err)
	assert.Equal(t, "CC(=O)OC1=CC=CC=C1C(=O)O", out)

	_, err = tool.Invoke(context.Background(), "unobtainium", "")
	require.Error(t, err)
	assert.True(t, chemerrors.IsRecoverableToolError(err))
	assert.Equal(t, "Cannot find a molecule/compound that matches the input name.", chemerrors.ObservationMessage(err))
}

func TestIUPAC2SMILESResolvesParts(t *testing.T) {
	pc := newFakePubChem(t, &fakePubChem{byName: map[string]map[string]any{
		"ethanol":  {"IsomericSMILES": "CCO"},
		"methanol": {"IsomericSMILES": "CO"},
	}})
	tool := NewIUPAC2SMILES(pc)

	out, err := tool.Invoke(context.Background(), "ethanol;methanol", "")
	require.NoError(t, err)
	assert.Equal(t, "CCO.CO", out)

	_, err = tool.Invoke(context.Background(), "ethanol;nothing", "")
	require.Error(t, err)
	assert.Equal(t, "Cannot find a molecule/compound for the following parts of the input IUPAC name: nothing", chemerrors.ObservationMessage(err))

	_, err = tool.Invoke(context.Background(), "nothing", "")
	require.Error(t, err)
	assert.Contains(t, chemerrors.ObservationMessage(err), "Cannot find a molecule/compound on PubChem that matches the input IUPAC name.")
}

func TestSMILES2IUPACHandlesMixtures(t *testing.T) {
	pc := newFakePubChem(t, &fakePubChem{bySMILES: map[string]map[string]any{
		"CCO":         {"IUPACName": "ethanol"},
		"O":           {"IUPACName": "oxidane"},
		"C1=CC=CC=C1": {"IUPACName": "benzene"},
	}})
	tool := NewSMILES2IUPAC(pc)

	out, err := tool.Invoke(context.Background(), "C1=CC=CC=C1", "")
	require.NoError(t, err)
	assert.Equal(t, "benzene", out)

	out, err = tool.Invoke(context.Background(), "CCO.O", "")
	require.NoError(t, err)
	assert.Equal(t, "ethanol;oxidane", out)

	_, err = tool.Invoke(context.Background(), "not smiles!", "")
	require.Error(t, err)
	assert.Equal(t, invalidSMILESMessage, chemerrors.ObservationMessage(err))
}

func TestSMILES2FormulaAndWeight(t *testing.T) {
	fake := &fakePubChem{bySMILES: map[string]map[string]any{
		"CCO": {"MolecularFormula": "C2H6O", "ExactMass": "46.041864811"},
		"CO":  {"ExactMass": 32.026214747},
	}}
	pc := newFakePubChem(t, fake)

	out, err := NewSMILES2Formula(pc).Invoke(context.Background(), "CCO", "")
	require.NoError(t, err)
	assert.Equal(t, "C2H6O", out)

	out, err = NewSMILES2Weight(pc).Invoke(context.Background(), "CCO", "")
	require.NoError(t, err)
	assert.Equal(t, "46.041864811", out)

	out, err = NewSMILES2Weight(pc).Invoke(context.Background(), "CO", "")
	require.NoError(t, err)
	assert.Equal(t, "32.026214747", out)

	before := fake.hits.Load()
	_, err = NewSMILES2Weight(pc).Invoke(context.Background(), "C C", "")
	require.Error(t, err)
	assert.True(t, chemerrors.IsRecoverableToolError(err))
	assert.Equal(t, before, fake.hits.Load(), "invalid input must not reach PubChem")
}

func TestPubChemToolsAreCacheable(t *testing.T) {
	pc := NewPubChem("", nil, nil)
	for _, tool := range []interface{ Cacheable() bool }{
		NewName2SMILES(pc).(*pubchemTool),
		NewMolSimilarity(pc),
	} {
		assert.True(t, tool.Cacheable())
	}
}

func TestLooksLikeSMILES(t *testing.T) {
	for _, s := range []string{"CCO", "C1=CC=CC=C1", "[Na+].[Cl-]", "C/C=C/C", "N#N", "C(C)(C)O"} {
		assert.True(t, LooksLikeSMILES(s), s)
	}
	for _, s := range []string{"", "C C", "C(C", "C)C(", "aspirin?"} {
		assert.False(t, LooksLikeSMILES(s), s)
	}
}

func TestMolSimilarity(t *testing.T) {
	fp := func(bits ...byte) string {
		return base64.StdEncoding.EncodeToString(append([]byte{0, 0, 3, 113}, bits...))
	}
	pc := newFakePubChem(t, &fakePubChem{bySMILES: map[string]map[string]any{
		"CCO": {"Fingerprint2D": fp(0b1111, 0b0011)},
		"CCN": {"Fingerprint2D": fp(0b0011, 0b0011)},
	}})
	tool := NewMolSimilarity(pc)

	out, err := tool.Invoke(context.Background(), "CCO;CCN", "")
	require.NoError(t, err)
	assert.Equal(t, "The Tanimoto similarity between CCO and CCN is 0.6667, indicating that the two molecules are somewhat similar.", out)

	out, err = tool.Invoke(context.Background(), "CCO; CCO", "")
	require.NoError(t, err)
	assert.Equal(t, "The input molecules are identical.", out)

	_, err = tool.Invoke(context.Background(), "CCO", "")
	require.Error(t, err)
	assert.Equal(t, "Input error, please input exactly two SMILES strings separated by ';'", chemerrors.ObservationMessage(err))
}

func TestTanimotoAndLabels(t *testing.T) {
	assert.Equal(t, 0.0, Tanimoto(nil, nil))
	assert.Equal(t, 1.0, Tanimoto([]byte{0xff}, []byte{0xff}))
	assert.InDelta(t, 0.5, Tanimoto([]byte{0x0f}, []byte{0x03, 0x00}), 1e-9)
	assert.Contains(t, DescribeSimilarity("A", "B", 0.94), "very similar")
	assert.Contains(t, DescribeSimilarity("A", "B", 0.1), "is 0.1, indicating that the two molecules are not similar.")
}
