package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/tools"
)

const molSimilarityDescription = "Input two molecule SMILES (separated by ';'), returns Tanimoto similarity."

// fingerprintHeaderBytes is the length prefix PubChem puts before the
// 881-bit CACTVS substructure keys.
const fingerprintHeaderBytes = 4

// MolSimilarity compares two molecules by the Tanimoto coefficient of their
// PubChem substructure fingerprints.
type MolSimilarity struct {
	pc *PubChem
}

// NewMolSimilarity returns the similarity tool.
func NewMolSimilarity(pc *PubChem) *MolSimilarity {
	return &MolSimilarity{pc: pc}
}

func (m *MolSimilarity) Name() string        { return tools.MolSimilarity }
func (m *MolSimilarity) Description() string { return molSimilarityDescription }
func (m *MolSimilarity) Cacheable() bool     { return true }

func (m *MolSimilarity) Invoke(ctx context.Context, input, _ string) (string, error) {
	pair := strings.Split(strings.TrimSpace(input), ";")
	if len(pair) != 2 {
		return "", chemerrors.Recoverable(tools.MolSimilarity, "Input error, please input exactly two SMILES strings separated by ';'")
	}
	smiles1, smiles2 := strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1])

	fp1, err := m.fingerprint(ctx, smiles1)
	if err != nil {
		return "", err
	}
	fp2, err := m.fingerprint(ctx, smiles2)
	if err != nil {
		return "", err
	}
	return DescribeSimilarity(smiles1, smiles2, Tanimoto(fp1, fp2)), nil
}

func (m *MolSimilarity) fingerprint(ctx context.Context, smiles string) ([]byte, error) {
	if !LooksLikeSMILES(smiles) {
		return nil, chemerrors.Recoverable(tools.MolSimilarity, fmt.Sprintf("Invalid SMILES: %s", smiles))
	}
	row, err := m.pc.PropertiesBySMILES(ctx, smiles, "Fingerprint2D")
	if err != nil {
		return nil, lookupError(tools.MolSimilarity, err, fmt.Sprintf("Invalid SMILES: %s", smiles))
	}
	raw, err := base64.StdEncoding.DecodeString(propertyString(row, "Fingerprint2D"))
	if err != nil || len(raw) <= fingerprintHeaderBytes {
		return nil, chemerrors.Recoverable(tools.MolSimilarity, fmt.Sprintf("PubChem returned no usable fingerprint for %s", smiles))
	}
	return raw[fingerprintHeaderBytes:], nil
}

// Tanimoto returns |a AND b| / |a OR b| over two bit strings.
func Tanimoto(a, b []byte) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var both, either int
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		both += bits.OnesCount8(x & y)
		either += bits.OnesCount8(x | y)
	}
	if either == 0 {
		return 0
	}
	return float64(both) / float64(either)
}

// DescribeSimilarity renders a similarity score with a qualitative label.
func DescribeSimilarity(smiles1, smiles2 string, similarity float64) string {
	if similarity == 1 {
		return "The input molecules are identical."
	}
	label := "not similar"
	switch rounded := math.Round(similarity*10) / 10; {
	case rounded >= 0.9:
		label = "very similar"
	case rounded >= 0.8:
		label = "similar"
	case rounded >= 0.7:
		label = "somewhat similar"
	case rounded >= 0.6:
		label = "not very similar"
	}
	score := strconv.FormatFloat(math.Round(similarity*1e4)/1e4, 'f', -1, 64)
	return fmt.Sprintf("The Tanimoto similarity between %s and %s is %s, indicating that the two molecules are %s.", smiles1, smiles2, score, label)
}
