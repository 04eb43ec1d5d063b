package subscription

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlansYAML []byte

// PlansSource loads plan definitions in tier order.
type PlansSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

// LoadCatalog builds a catalog from a source.
func LoadCatalog(ctx context.Context, src PlansSource) (*Catalog, error) {
	if src == nil {
		panic("subscription: PlansSource is required")
	}
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return NewCatalog(plans...)
}

type staticSource []Plan

// NewStaticSource serves a fixed list of plans.
func NewStaticSource(plans ...Plan) PlansSource {
	return staticSource(plans)
}

func (s staticSource) Load(context.Context) ([]Plan, error) {
	return append([]Plan(nil), s...), nil
}

// YAMLSource reads plans from a YAML document. ${VAR} references are expanded
// from the process environment, which keeps price ids out of the file.
type YAMLSource struct {
	read   func() (io.ReadCloser, error)
	lookup func(string) string
}

// NewYAMLSource reads the YAML document from r on every Load.
func NewYAMLSource(data []byte) *YAMLSource {
	return &YAMLSource{
		read:   func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		lookup: os.Getenv,
	}
}

// NewYAMLFileSource reads plans from a file path.
func NewYAMLFileSource(path string) *YAMLSource {
	return &YAMLSource{
		read:   func() (io.ReadCloser, error) { return os.Open(path) },
		lookup: os.Getenv,
	}
}

// DefaultPlansSource serves the embedded catalog.
func DefaultPlansSource() *YAMLSource {
	return NewYAMLSource(defaultPlansYAML)
}

// WithLookup replaces the environment lookup used for ${VAR} expansion.
func (s *YAMLSource) WithLookup(fn func(string) string) *YAMLSource {
	if fn != nil {
		s.lookup = fn
	}
	return s
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID            PlanID                  `yaml:"id"`
	Name          string                  `yaml:"name"`
	Free          bool                    `yaml:"free"`
	ResourceLimit yamlLimit               `yaml:"resource_limit"`
	FeePercent    string                  `yaml:"fee_percent"`
	Amounts       map[BillingCycle]string `yaml:"amounts"`
	Prices        map[BillingCycle]string `yaml:"prices"`
	Features      []Feature               `yaml:"features"`
}

type yamlLimit int64

func (l *yamlLimit) UnmarshalYAML(node *yaml.Node) error {
	if strings.EqualFold(strings.TrimSpace(node.Value), "unlimited") {
		*l = yamlLimit(Unlimited)
		return nil
	}
	n, err := strconv.ParseInt(node.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("resource_limit %q: want integer or \"unlimited\"", node.Value)
	}
	*l = yamlLimit(n)
	return nil
}

// Load implements PlansSource.
func (s *YAMLSource) Load(ctx context.Context) ([]Plan, error) {
	rc, err := s.read()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var doc yamlCatalog
	if err := yaml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, errors.Join(ErrInvalidPlanConfiguration, err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for _, yp := range doc.Plans {
		p := Plan{
			ID:            yp.ID,
			Name:          yp.Name,
			Free:          yp.Free,
			ResourceLimit: int64(yp.ResourceLimit),
			Features:      yp.Features,
			FeePercent:    decimal.Zero,
		}
		if yp.FeePercent != "" {
			fee, err := decimal.NewFromString(yp.FeePercent)
			if err != nil {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %q fee_percent: %w", yp.ID, err))
			}
			p.FeePercent = fee
		}
		if len(yp.Amounts) > 0 {
			p.Amounts = make(map[BillingCycle]decimal.Decimal, len(yp.Amounts))
			for cycle, raw := range yp.Amounts {
				amount, err := decimal.NewFromString(raw)
				if err != nil {
					return nil, errors.Join(ErrInvalidPlanConfiguration,
						fmt.Errorf("plan %q amount for %s: %w", yp.ID, cycle, err))
				}
				p.Amounts[cycle] = amount
			}
		}
		if len(yp.Prices) > 0 {
			p.PriceIDs = make(map[BillingCycle]string, len(yp.Prices))
			for cycle, raw := range yp.Prices {
				if id := strings.TrimSpace(os.Expand(raw, s.lookup)); id != "" {
					p.PriceIDs[cycle] = id
				}
			}
		}
		plans = append(plans, p)
	}

	return plans, nil
}
