// Package catalog holds the static registry of chargeable PDF operations and
// the credit packs users can purchase. A Catalog is built once at startup and
// never mutated, so it is safe for unsynchronized concurrent reads.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-pdfops-backend/internal/search"
)

// OperationDefinition describes one chargeable action.
type OperationDefinition struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	CreditCost         int64  `json:"credit_cost"`
	RequiresUpload     bool   `json:"requires_upload"`
	RequiresSecondFile bool   `json:"requires_second_file"`

	// Refundable jobs get their debit back when the executor reports a
	// failure.
	Refundable bool `json:"refundable"`

	// Display hints for the editor tool panel.
	Category string   `json:"category,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

func (d OperationDefinition) clone() OperationDefinition {
	d.Keywords = slices.Clone(d.Keywords)
	return d
}

// CreditPack is a purchasable bundle of credits.
type CreditPack struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	PriceUSD int    `json:"price_usd"`
	Credits  int64  `json:"credits"`
}

// Catalog is an immutable, ordered set of operations and credit packs.
type Catalog struct {
	ops   []OperationDefinition
	byID  map[string]int
	packs []CreditPack
	pack  map[string]int
	index search.Index
}

var fold = cases.Lower(language.Und)

// NormalizeID trims and lower-cases an operation or pack identifier.
func NormalizeID(id string) string {
	return fold.String(strings.TrimSpace(id))
}

// New validates defs and packs and returns a Catalog preserving their order.
func New(defs []OperationDefinition, packs []CreditPack) (*Catalog, error) {
	c := &Catalog{
		ops:   make([]OperationDefinition, 0, len(defs)),
		byID:  make(map[string]int, len(defs)),
		packs: make([]CreditPack, 0, len(packs)),
		pack:  make(map[string]int, len(packs)),
	}
	for _, d := range defs {
		d.ID = NormalizeID(d.ID)
		if d.ID == "" {
			return nil, errors.New("catalog: operation id must not be empty")
		}
		if d.CreditCost < 0 {
			return nil, fmt.Errorf("catalog: operation %q has negative cost", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate operation %q", d.ID)
		}
		c.byID[d.ID] = len(c.ops)
		c.ops = append(c.ops, d.clone())
	}
	for _, p := range packs {
		p.ID = NormalizeID(p.ID)
		if p.ID == "" {
			return nil, errors.New("catalog: pack id must not be empty")
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("catalog: pack %q must grant a positive number of credits", p.ID)
		}
		if _, dup := c.pack[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate pack %q", p.ID)
		}
		c.pack[p.ID] = len(c.packs)
		c.packs = append(c.packs, p)
	}

	docs := make([]search.Doc, 0, len(c.ops))
	for _, op := range c.ops {
		fields := append([]string{op.ID, op.Name, op.Description, op.Category}, op.Keywords...)
		docs = append(docs, search.Doc{ID: op.ID, Fields: fields})
	}
	c.index = search.NewIndex(docs)
	return c, nil
}

// MustNew is New that panics on invalid input. Intended for static tables.
func MustNew(defs []OperationDefinition, packs []CreditPack) *Catalog {
	c, err := New(defs, packs)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the operation registered under id.
func (c *Catalog) Get(id string) (OperationDefinition, bool) {
	i, ok := c.byID[NormalizeID(id)]
	if !ok {
		return OperationDefinition{}, false
	}
	return c.ops[i].clone(), true
}

// List returns all operations in catalog order. The slice is a copy.
func (c *Catalog) List() []OperationDefinition {
	out := make([]OperationDefinition, len(c.ops))
	for i, op := range c.ops {
		out[i] = op.clone()
	}
	return out
}

// Search ranks operations against a free-text query such as "combine" or
// "rotate pages". limit <= 0 returns every match.
func (c *Catalog) Search(query string, limit int) []OperationDefinition {
	hits := c.index.TopK(query, limit)
	out := make([]OperationDefinition, 0, len(hits))
	for _, h := range hits {
		out = append(out, c.ops[c.byID[h.ID]].clone())
	}
	return out
}

// Cost returns creditCost * max(1, quantity) for the operation.
func (c *Catalog) Cost(id string, quantity int) (int64, bool) {
	op, ok := c.Get(id)
	if !ok {
		return 0, false
	}
	return op.CreditCost * int64(ClampQuantity(quantity)), true
}

// Pack returns the credit pack registered under id.
func (c *Catalog) Pack(id string) (CreditPack, bool) {
	i, ok := c.pack[NormalizeID(id)]
	if !ok {
		return CreditPack{}, false
	}
	return c.packs[i], true
}

// Packs returns all credit packs in catalog order. The slice is a copy.
func (c *Catalog) Packs() []CreditPack {
	out := make([]CreditPack, len(c.packs))
	copy(out, c.packs)
	return out
}

// ClampQuantity treats anything below 1 as 1.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}
