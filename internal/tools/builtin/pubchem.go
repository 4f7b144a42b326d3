package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/httpclient"
	"chemagent/internal/logging"
)

// DefaultPubChemURL is the PUG REST root.
const DefaultPubChemURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"

var errCompoundNotFound = errors.New("compound not found")

// PubChem is a small PUG REST client shared by the name and property tools.
type PubChem struct {
	baseURL string
	client  *http.Client
	retry   chemerrors.RetryConfig
	logger  logging.Logger
}

// NewPubChem returns a client for baseURL (DefaultPubChemURL when empty).
func NewPubChem(baseURL string, client *http.Client, logger logging.Logger) *PubChem {
	logger = logging.OrNop(logger)
	if baseURL == "" {
		baseURL = DefaultPubChemURL
	}
	if client == nil {
		client = httpclient.New(30*time.Second, logger)
	}
	return &PubChem{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		retry:   chemerrors.FixedDelayConfig(2, time.Second),
		logger:  logger,
	}
}

type pubchemPropertyTable struct {
	PropertyTable struct {
		Properties []map[string]any `json:"Properties"`
	} `json:"PropertyTable"`
}

// PropertiesByName looks up a compound by common or IUPAC name.
func (p *PubChem) PropertiesByName(ctx context.Context, name string, props ...string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/compound/name/%s/property/%s/JSON",
		p.baseURL, url.PathEscape(strings.TrimSpace(name)), strings.Join(props, ","))
	return p.fetchProperties(ctx, endpoint)
}

// PropertiesBySMILES looks up a compound by SMILES. The SMILES travels as a
// query parameter so characters like '/' and '#' survive.
func (p *PubChem) PropertiesBySMILES(ctx context.Context, smiles string, props ...string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/compound/smiles/property/%s/JSON?%s",
		p.baseURL, strings.Join(props, ","), url.Values{"smiles": {strings.TrimSpace(smiles)}}.Encode())
	return p.fetchProperties(ctx, endpoint)
}

func (p *PubChem) fetchProperties(ctx context.Context, endpoint string) (map[string]any, error) {
	table, err := chemerrors.Retry(ctx, p.retry, p.logger, func(ctx context.Context) (*pubchemPropertyTable, error) {
		var out pubchemPropertyTable
		if err := httpclient.DoJSON(ctx, p.client, http.MethodGet, endpoint, nil, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		var permanent *chemerrors.PermanentError
		if errors.As(err, &permanent) && (permanent.StatusCode == http.StatusNotFound || permanent.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %v", errCompoundNotFound, err)
		}
		return nil, err
	}
	rows := table.PropertyTable.Properties
	if len(rows) == 0 {
		return nil, errCompoundNotFound
	}
	if len(rows) > 1 {
		p.logger.Info("There are more than one molecules/compounds that match the input. Using the first matched one.")
	}
	return rows[0], nil
}

// propertyString renders a PubChem property that may be encoded as a string
// or a number.
func propertyString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := row[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// smilesPropertyKeys lists the keys PubChem has used for isomeric SMILES.
var smilesPropertyKeys = []string{"IsomericSMILES", "SMILES", "CanonicalSMILES", "ConnectivitySMILES"}

// LooksLikeSMILES is a cheap syntactic screen; PubChem performs the real
// validation.
func LooksLikeSMILES(s string) bool {
	if s == "" {
		return false
	}
	depth := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case strings.ContainsRune("@+-[]=#$%:/\\.*~", r):
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return false
			}
		default:
			return false
		}
	}
	return depth == 0
}
