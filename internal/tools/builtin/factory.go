package builtin

import (
	"errors"
	"net/http"
	"time"

	"chemagent/internal/kernel"
	"chemagent/internal/llm"
	"chemagent/internal/logging"
	"chemagent/internal/tools"
)

// ErrIncludeAndExclude is returned when both selection lists are set.
var ErrIncludeAndExclude = errors.New("tools: include and exclude lists are mutually exclusive")

// Config wires the built-in tools to their backends.
type Config struct {
	// Executor runs PythonREPL code; the tool is skipped when nil.
	Executor      kernel.Executor
	PythonTimeout time.Duration

	// ExpertLLM answers AiExpert questions; the tool is skipped when nil.
	ExpertLLM llm.Client

	TavilyAPIKey   string
	RXN4ChemAPIKey string

	PubChemURL   string
	WikipediaURL string
	TavilyURL    string
	HTTPClient   *http.Client

	Include []string
	Exclude []string

	Logger logging.Logger
}

// MakeTools builds the built-in tool list in catalog order, then applies the
// include or exclude filter. Key-gated tools are only added when their key is
// configured.
func MakeTools(cfg Config) ([]tools.Tool, error) {
	if len(cfg.Include) > 0 && len(cfg.Exclude) > 0 {
		return nil, ErrIncludeAndExclude
	}
	logger := logging.OrNop(cfg.Logger)
	pc := NewPubChem(cfg.PubChemURL, cfg.HTTPClient, logger)

	all := []tools.Tool{
		NewIUPAC2SMILES(pc),
		NewSMILES2IUPAC(pc),
		NewName2SMILES(pc),
		NewSMILES2Formula(pc),
		NewMolSimilarity(pc),
		NewSMILES2Weight(pc),
		NewWikipedia(cfg.WikipediaURL, cfg.HTTPClient, logger),
	}
	if cfg.Executor != nil {
		all = append(all, NewPythonREPL(cfg.Executor, PythonREPLOptions{Timeout: cfg.PythonTimeout, Logger: logger}))
	} else {
		logger.Warn("No kernel executor configured; %s is unavailable.", tools.PythonREPL)
	}
	if cfg.RXN4ChemAPIKey != "" {
		logger.Warn("RXN4Chem key set but %s and %s have no backend in this build.", tools.ForwardSynthesis, tools.Retrosynthesis)
	}
	if cfg.TavilyAPIKey != "" {
		all = append(all, NewWebSearch(cfg.TavilyAPIKey, cfg.TavilyURL, cfg.HTTPClient, logger))
	}
	if cfg.ExpertLLM != nil {
		all = append(all, NewAiExpert(cfg.ExpertLLM))
	} else {
		logger.Warn("No model configured for %s.", tools.AiExpert)
	}

	return filterTools(all, cfg.Include, cfg.Exclude), nil
}

func filterTools(all []tools.Tool, include, exclude []string) []tools.Tool {
	switch {
	case len(include) > 0:
		keep := toSet(include)
		out := make([]tools.Tool, 0, len(include))
		for _, t := range all {
			if keep[t.Name()] {
				out = append(out, t)
			}
		}
		return out
	case len(exclude) > 0:
		drop := toSet(exclude)
		out := make([]tools.Tool, 0, len(all))
		for _, t := range all {
			if !drop[t.Name()] {
				out = append(out, t)
			}
		}
		return out
	}
	return all
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
