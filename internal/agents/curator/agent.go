// Package curator matches wellness products to a subject's focus areas. The
// catalogue is static and curated by hand; matching is tag overlap, nothing
// cleverer, so every recommendation is explainable by naming the tag.
package curator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"vitaex/internal/agent"
	"vitaex/internal/compliance"
	"vitaex/internal/event"
)

// Product is one curated catalogue entry.
type Product struct {
	SKU       string   `json:"sku"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags"`
	Rationale string   `json:"rationale"`
}

// catalogue is the curated product set. Rationales are written in wellness
// language already; Handle still softens and screens them.
var catalogue = []Product{
	{
		SKU:       "supp-mag-gly",
		Name:      "Magnesium glycinate",
		Tags:      []string{"sleep", "sleep_quality", "stress"},
		Rationale: "Magnesium in the evening may support relaxation and sleep onset.",
	},
	{
		SKU:       "supp-vit-d3",
		Name:      "Vitamin D3",
		Tags:      []string{"energy", "immunity", "vitamin_d"},
		Rationale: "Daily vitamin D may support subjects with low measured levels.",
	},
	{
		SKU:       "supp-omega3",
		Name:      "Omega-3 fish oil",
		Tags:      []string{"recovery", "cardio_fitness", "inflammation"},
		Rationale: "Omega-3 intake may support recovery and cardiovascular fitness.",
	},
	{
		SKU:       "gear-light-lamp",
		Name:      "Sunrise light lamp",
		Tags:      []string{"sleep", "circadian", "energy"},
		Rationale: "Morning light exposure may support a steadier circadian rhythm.",
	},
	{
		SKU:       "gear-hr-strap",
		Name:      "Chest heart-rate strap",
		Tags:      []string{"cardio_fitness", "activity", "hrv"},
		Rationale: "Accurate heart-rate tracking may support zone-based training.",
	},
	{
		SKU:       "supp-ashwagandha",
		Name:      "Ashwagandha extract",
		Tags:      []string{"stress", "sleep", "recovery"},
		Rationale: "Ashwagandha in the evening may support a calmer wind-down.",
	},
}

// maxRecommendations bounds one completion's product list.
const maxRecommendations = 3

// Request is the payload of recommendation.requested.
type Request struct {
	Goal  string   `json:"goal"`
	Focus []string `json:"focus"`
}

// Recommendations is the completion payload.
type Recommendations struct {
	Products   []Product `json:"products"`
	Disclaimer string    `json:"disclaimer"`
}

type Agent struct{}

func New() *Agent { return &Agent{} }

func (a *Agent) ID() string { return "curator" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicRecommendationRequested, Emit: event.TopicRecommendationCompleted}}
}

func (a *Agent) Handle(_ context.Context, ev event.Event) (agent.Result, error) {
	var req Request
	if err := ev.DecodePayload(&req); err != nil {
		return agent.Result{}, agent.Permanent(err)
	}
	if len(req.Focus) == 0 && strings.TrimSpace(req.Goal) == "" {
		return agent.Result{}, agent.Permanent(fmt.Errorf("recommendation request has neither goal nor focus"))
	}

	products := match(req)
	completion, err := event.NewCompletion(
		event.TopicRecommendationCompleted, "recommendation.curated", ev,
		event.OutcomeSuccess, "",
		Recommendations{Products: products, Disclaimer: compliance.Disclaimer},
	)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Events: []event.Event{completion}}, nil
}

// match scores catalogue entries by tag overlap with the focus areas and
// goal words, keeping the top entries in deterministic order.
func match(req Request) []Product {
	wanted := make(map[string]bool)
	for _, f := range req.Focus {
		wanted[strings.ToLower(f)] = true
	}
	for _, word := range strings.Fields(strings.ToLower(req.Goal)) {
		wanted[strings.Trim(word, ".,;:!?")] = true
	}

	type scored struct {
		product Product
		score   int
	}
	var hits []scored
	for _, p := range catalogue {
		var score int
		for _, tag := range p.Tags {
			if wanted[tag] {
				score++
			}
		}
		if score > 0 {
			p.Rationale = compliance.Soften(p.Rationale)
			hits = append(hits, scored{product: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].product.SKU < hits[j].product.SKU
	})
	if len(hits) > maxRecommendations {
		hits = hits[:maxRecommendations]
	}

	out := make([]Product, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.product)
	}
	return out
}
