package tools

import (
	"context"
	"sort"
)

// Tool is a named capability the agent can call with a single text input.
// sessionID identifies the conversation so stateful tools (the Python kernel)
// can keep per-conversation state; stateless tools ignore it.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input, sessionID string) (string, error)
}

// OutputChecker is implemented by tools that need to reclassify a successful
// invocation. A non-nil error is treated exactly like an Invoke error.
type OutputChecker interface {
	CheckOutput(input, output string) error
}

// Cacheable marks tools whose output depends only on their input.
type Cacheable interface {
	Cacheable() bool
}

// IsCacheable reports whether tool opted in to result caching.
func IsCacheable(tool Tool) bool {
	c, ok := tool.(Cacheable)
	return ok && c.Cacheable()
}

// Names returns the tool names in the given order.
func Names(list []Tool) []string {
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	return names
}

// Tool names of the reference catalog.
const (
	PubchemSearchQA       = "PubchemSearchQA"
	IUPAC2SMILES          = "IUPAC2SMILES"
	SMILES2IUPAC          = "SMILES2IUPAC"
	Name2SMILES           = "Name2SMILES"
	SMILES2SELFIES        = "SMILES2SELFIES"
	SELFIES2SMILES        = "SELFIES2SMILES"
	SMILES2Formula        = "SMILES2Formula"
	PatentCheck           = "PatentCheck"
	CanonicalizeSMILES    = "CanonicalizeSMILES"
	CompareSMILES         = "CompareSMILES"
	CountMolAtoms         = "CountMolAtoms"
	MolSimilarity         = "MolSimilarity"
	SMILES2Weight         = "SMILES2Weight"
	FunctionalGroups      = "FunctionalGroups"
	GetMoleculePrice      = "GetMoleculePrice"
	WikipediaSearch       = "WikipediaSearch"
	PythonREPL            = "PythonREPL"
	MoleculeCaptioner     = "MoleculeCaptioner"
	MoleculeGenerator     = "MoleculeGenerator"
	ForwardSynthesis      = "ForwardSynthesis"
	Retrosynthesis        = "Retrosynthesis"
	WebSearch             = "WebSearch"
	AiExpert              = "AiExpert"
	SolubilityPredictor   = "SolubilityPredictor"
	LogDPredictor         = "LogDPredictor"
	BBBPPredictor         = "BBBPPredictor"
	ToxicityPredictor     = "ToxicityPredictor"
	HIVInhibitorPredictor = "HIVInhibitorPredictor"
	SideEffectPredictor   = "SideEffectPredictor"
)

var referenceCatalog = []string{
	PubchemSearchQA,
	IUPAC2SMILES,
	SMILES2IUPAC,
	Name2SMILES,
	SMILES2SELFIES,
	SELFIES2SMILES,
	SMILES2Formula,
	PatentCheck,
	CanonicalizeSMILES,
	CompareSMILES,
	CountMolAtoms,
	MolSimilarity,
	SMILES2Weight,
	FunctionalGroups,
	GetMoleculePrice,
	WikipediaSearch,
	PythonREPL,
	MoleculeCaptioner,
	MoleculeGenerator,
	ForwardSynthesis,
	Retrosynthesis,
	WebSearch,
	AiExpert,
	SolubilityPredictor,
	LogDPredictor,
	BBBPPredictor,
	ToxicityPredictor,
	HIVInhibitorPredictor,
	SideEffectPredictor,
}

// ReferenceCatalog returns a sorted copy of the full set of expected tool names.
func ReferenceCatalog() []string {
	out := append([]string(nil), referenceCatalog...)
	sort.Strings(out)
	return out
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	ToolName      string
	Desc          string
	Deterministic bool
	Fn            func(ctx context.Context, input, sessionID string) (string, error)
}

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.Desc }
func (f *Func) Cacheable() bool     { return f.Deterministic }

func (f *Func) Invoke(ctx context.Context, input, sessionID string) (string, error) {
	if f.Fn == nil {
		return "", nil
	}
	return f.Fn(ctx, input, sessionID)
}
