package claim

import (
	_ "embed"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds every table the engine consults. Adding a label variant, a city
// alias or a region keyword is a rules change, not a code change.
type Rules struct {
	HintLabels         []HintLabels                   `koanf:"hint_labels"`
	EmbeddedHintFields []string                       `koanf:"embedded_hint_fields"`
	ModeHints          map[string][]string            `koanf:"mode_hints"`
	ModeMarkers        map[string][]string            `koanf:"mode_markers"`
	CategoryRules      []CategoryRule                 `koanf:"category_rules"`
	AmountFields       []string                       `koanf:"amount_fields"`
	IssuanceDateFields []string                       `koanf:"issuance_date_fields"`
	NightsFields       []string                       `koanf:"nights_fields"`
	NightsSuffixes     []string                       `koanf:"nights_suffixes"`
	Synonyms           map[string]map[string][]string `koanf:"synonyms"`
	RequiredFields     map[string][]string            `koanf:"required_fields"`
	Place              PlaceRules                     `koanf:"place"`
	Regions            RegionRules                    `koanf:"regions"`
	Expense            ExpenseRules                   `koanf:"expense"`
	ClaimantDefaults   ClaimantDefaults               `koanf:"claimant_defaults"`
}

// HintLabels maps the labels a caller may use as a category hint
type HintLabels struct {
	Category Category `koanf:"category"`
	Labels   []string `koanf:"labels"`
}

// CategoryRule is one step of the category cascade. It matches when every
// field group has a non-empty field, when any marker field is non-empty, or
// when any keyword appears in a field value.
type CategoryRule struct {
	Category     Category   `koanf:"category"`
	FieldGroups  [][]string `koanf:"field_groups"`
	MarkerFields []string   `koanf:"marker_fields"`
	Keywords     []string   `koanf:"keywords"`
}

// PlaceRules tunes station-to-city matching
type PlaceRules struct {
	StationSuffixes []string    `koanf:"station_suffixes"`
	AdminSuffixes   []string    `koanf:"admin_suffixes"`
	ShortNameLength int         `koanf:"short_name_length"`
	OverlapRatio    float64     `koanf:"overlap_ratio"`
	Aliases         []CityAlias `koanf:"aliases"`
}

// CityAlias lists other names a station string may use for a city
type CityAlias struct {
	City  string   `koanf:"city"`
	Names []string `koanf:"names"`
}

// RegionRules drives the reimbursement type code
type RegionRules struct {
	DefaultCode string        `koanf:"default_code"`
	Labels      []RegionLabel `koanf:"labels"`
	Cities      []RegionCity  `koanf:"cities"`
	Tiers       []RegionTier  `koanf:"tiers"`
}

type RegionLabel struct {
	Code string `koanf:"code"`
	Name string `koanf:"name"`
}

type RegionCity struct {
	City string `koanf:"city"`
	Code string `koanf:"code"`
}

// RegionTier is checked by containment, in order
type RegionTier struct {
	Name     string   `koanf:"name"`
	Code     string   `koanf:"code"`
	Keywords []string `koanf:"keywords"`
}

// ExpenseRules maps invoice categories onto claim expense buckets
type ExpenseRules struct {
	DefaultBucket string       `koanf:"default_bucket"`
	TotalLabel    string       `koanf:"total_label"`
	Buckets       []BucketRule `koanf:"buckets"`
}

type BucketRule struct {
	Name       string     `koanf:"name"`
	Categories []Category `koanf:"categories"`
}

// ClaimantDefaults fill claimant fields left empty on the confirmation form
type ClaimantDefaults struct {
	ExpenseReason        string `koanf:"expense_reason"`
	BankName             string `koanf:"bank_name"`
	SharingReason        string `koanf:"sharing_reason"`
	LodgingOverage       string `koanf:"lodging_overage"`
	CityTransportOverage string `koanf:"city_transport_overage"`
	OverageExplanation   string `koanf:"overage_explanation"`
}

// DefaultRules returns the embedded rule tables
func DefaultRules() *Rules {
	rules, err := LoadRules(nil)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return rules
}

// LoadRules parses the embedded defaults and merges override, a YAML
// document, on top of them. A nil override yields the defaults.
func LoadRules(override []byte) (*Rules, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultRulesYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading default rules: %w", err)
	}
	if len(override) > 0 {
		if err := k.Load(rawbytes.Provider(override), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading rules override: %w", err)
		}
	}

	var rules Rules
	if err := k.UnmarshalWithConf("", &rules, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *Rules) validate() error {
	if r.Regions.DefaultCode == "" {
		return fmt.Errorf("rules: regions.default_code is required")
	}
	if r.Expense.DefaultBucket == "" {
		return fmt.Errorf("rules: expense.default_bucket is required")
	}
	if r.Place.OverlapRatio <= 0 || r.Place.OverlapRatio > 1 {
		return fmt.Errorf("rules: place.overlap_ratio must be in (0, 1], got %v", r.Place.OverlapRatio)
	}
	for _, rule := range r.CategoryRules {
		if !rule.Category.Valid() {
			return fmt.Errorf("rules: unknown category %q in category_rules", rule.Category)
		}
	}
	for _, bucket := range r.Expense.Buckets {
		for _, c := range bucket.Categories {
			if !c.Valid() {
				return fmt.Errorf("rules: unknown category %q in bucket %q", c, bucket.Name)
			}
		}
	}
	return nil
}

// synonymsFor returns the ordered labels accepted for a canonical field
func (r *Rules) synonymsFor(section, field string) []string {
	return r.Synonyms[section][field]
}
