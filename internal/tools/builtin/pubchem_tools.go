package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/tools"
)

const (
	name2SMILESDescription    = "Input common name of molecule/compound (one at a time), returns SMILES."
	iupac2SMILESDescription   = "Input IUPAC name of molecule/compound (one at a time), returns SMILES. To get SMILES from IUPAC name, you must use this tool."
	smiles2IUPACDescription   = "Input SMILES of a molecule/compound (one at a time), returns IUPAC name. To get IUPAC name from SMILES, you must use this tool."
	smiles2FormulaDescription = "Input SMILES of a molecule/compound (one at a time), returns molecular formula. To get molecular formula from SMILES, you must use this tool."
	smiles2WeightDescription  = "Calculate molecular weight. Input SMILES, returns molecular weight."

	invalidSMILESMessage = "The input is not valid SMILES. Please double check."
)

// pubchemTool is the shared shape of the lookup tools: deterministic, one
// input string, one PubChem round trip (or one per part).
type pubchemTool struct {
	name string
	desc string
	run  func(ctx context.Context, input string) (string, error)
}

func (t *pubchemTool) Name() string        { return t.name }
func (t *pubchemTool) Description() string { return t.desc }
func (t *pubchemTool) Cacheable() bool     { return true }

func (t *pubchemTool) Invoke(ctx context.Context, input, _ string) (string, error) {
	return t.run(ctx, strings.TrimSpace(input))
}

// NewName2SMILES converts a common name to isomeric SMILES.
func NewName2SMILES(pc *PubChem) tools.Tool {
	return &pubchemTool{name: tools.Name2SMILES, desc: name2SMILESDescription, run: func(ctx context.Context, name string) (string, error) {
		row, err := pc.PropertiesByName(ctx, name, "IsomericSMILES")
		if err != nil {
			return "", lookupError(tools.Name2SMILES, err, "Cannot find a molecule/compound that matches the input name.")
		}
		smiles := propertyString(row, smilesPropertyKeys...)
		if smiles == "" {
			return "", chemerrors.Recoverable(tools.Name2SMILES, "PubChem returned no SMILES for the input name.")
		}
		return smiles, nil
	}}
}

// NewIUPAC2SMILES converts an IUPAC name to SMILES. Names joined by ';' are
// resolved one by one and the SMILES joined with '.'.
func NewIUPAC2SMILES(pc *PubChem) tools.Tool {
	var resolve func(ctx context.Context, iupac string) (string, error)
	resolve = func(ctx context.Context, iupac string) (string, error) {
		row, err := pc.PropertiesByName(ctx, iupac, "IsomericSMILES")
		if err == nil {
			if smiles := propertyString(row, smilesPropertyKeys...); smiles != "" {
				return smiles, nil
			}
			err = errCompoundNotFound
		}
		if !errors.Is(err, errCompoundNotFound) {
			return "", lookupError(tools.IUPAC2SMILES, err, "")
		}

		parts := strings.Split(iupac, ";")
		if len(parts) == 1 {
			return "", chemerrors.Recoverable(tools.IUPAC2SMILES, "Cannot find a molecule/compound on PubChem that matches the input IUPAC name. Possible reasons: 1) The input must be a valid IUPAC name. 2) Must input only one at a time. If there are multiple molecules in the input, separated by comma or blankspace, please input each of them at a time.")
		}
		pc.logger.Info("The input IUPAC name contains multiple molecules/compounds. Searching for each of them.")
		var found, missing []string
		for _, part := range parts {
			part = strings.TrimSpace(part)
			smiles, err := resolve(ctx, part)
			if err != nil {
				if !chemerrors.IsRecoverableToolError(err) {
					return "", err
				}
				missing = append(missing, part)
				continue
			}
			found = append(found, smiles)
		}
		if len(missing) > 0 {
			return "", chemerrors.Recoverable(tools.IUPAC2SMILES, "Cannot find a molecule/compound for the following parts of the input IUPAC name: "+strings.Join(missing, ", "))
		}
		return strings.Join(found, "."), nil
	}
	return &pubchemTool{name: tools.IUPAC2SMILES, desc: iupac2SMILESDescription, run: resolve}
}

// NewSMILES2IUPAC converts SMILES to an IUPAC name. Unmatched dot-separated
// mixtures are resolved per component and joined with ';'.
func NewSMILES2IUPAC(pc *PubChem) tools.Tool {
	var resolve func(ctx context.Context, smiles string) (string, error)
	resolve = func(ctx context.Context, smiles string) (string, error) {
		if !LooksLikeSMILES(smiles) {
			return "", chemerrors.Recoverable(tools.SMILES2IUPAC, invalidSMILESMessage)
		}
		row, err := pc.PropertiesBySMILES(ctx, smiles, "IUPACName")
		if err == nil {
			if name := propertyString(row, "IUPACName"); name != "" {
				return name, nil
			}
			return "", chemerrors.Recoverable(tools.SMILES2IUPAC, "PubChem has no IUPAC name for the matched compound.")
		}
		if !errors.Is(err, errCompoundNotFound) {
			return "", lookupError(tools.SMILES2IUPAC, err, "")
		}

		parts := strings.Split(smiles, ".")
		if len(parts) == 1 {
			return "", chemerrors.Recoverable(tools.SMILES2IUPAC, "Cannot find a matched molecule/compound. Please check the input SMILES.")
		}
		var names, missing []string
		for _, part := range parts {
			name, err := resolve(ctx, part)
			if err != nil {
				if !chemerrors.IsRecoverableToolError(err) {
					return "", err
				}
				missing = append(missing, part)
				continue
			}
			names = append(names, name)
		}
		if len(missing) > 0 {
			return "", chemerrors.Recoverable(tools.SMILES2IUPAC, "Cannot find a matched molecule/compound for the following parts of the input SMILES: "+strings.Join(missing, ", "))
		}
		return strings.Join(names, ";"), nil
	}
	return &pubchemTool{name: tools.SMILES2IUPAC, desc: smiles2IUPACDescription, run: resolve}
}

// NewSMILES2Formula returns the molecular formula of a SMILES.
func NewSMILES2Formula(pc *PubChem) tools.Tool {
	return &pubchemTool{name: tools.SMILES2Formula, desc: smiles2FormulaDescription, run: func(ctx context.Context, smiles string) (string, error) {
		if !LooksLikeSMILES(smiles) {
			return "", chemerrors.Recoverable(tools.SMILES2Formula, "The input is not valid SMILES. Please double check. If there are multiple parts in the input SMILES, please use dot as the separator.")
		}
		row, err := pc.PropertiesBySMILES(ctx, smiles, "MolecularFormula")
		if err != nil {
			return "", lookupError(tools.SMILES2Formula, err, invalidSMILESMessage)
		}
		return propertyString(row, "MolecularFormula"), nil
	}}
}

// NewSMILES2Weight returns the exact molecular weight of a SMILES.
func NewSMILES2Weight(pc *PubChem) tools.Tool {
	const invalid = "Invalid SMILES string. Please make sure that you input a valid SMILES string, and only one at a time."
	return &pubchemTool{name: tools.SMILES2Weight, desc: smiles2WeightDescription, run: func(ctx context.Context, smiles string) (string, error) {
		if !LooksLikeSMILES(smiles) {
			return "", chemerrors.Recoverable(tools.SMILES2Weight, invalid)
		}
		row, err := pc.PropertiesBySMILES(ctx, smiles, "ExactMass")
		if err != nil {
			return "", lookupError(tools.SMILES2Weight, err, invalid)
		}
		weight := propertyString(row, "ExactMass", "MolecularWeight")
		if weight == "" {
			return "", chemerrors.Recoverable(tools.SMILES2Weight, "PubChem returned no weight for the input SMILES.")
		}
		return weight, nil
	}}
}

// lookupError turns a PubChem failure into a recoverable observation.
// notFound replaces the message when the compound does not exist.
func lookupError(tool string, err error, notFound string) error {
	if errors.Is(err, errCompoundNotFound) && notFound != "" {
		return chemerrors.Recoverable(tool, notFound)
	}
	return &chemerrors.ToolError{
		Tool:        tool,
		Message:     fmt.Sprintf("PubChem lookup failed: %v", err),
		Recoverable: true,
		Err:         err,
	}
}
