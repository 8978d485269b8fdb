// Package generation produces protocol text from retrieved evidence. The
// generator is a plain function value so deployments can plug in a model
// backend; the default is deterministic and template-driven, which keeps the
// pipeline testable and the compliance surface predictable.
package generation

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"vitaex/internal/compliance"
	id "vitaex/pkg/domain"
)

// Reference is one piece of retrieved evidence backing a protocol.
type Reference struct {
	ID      string
	Title   string
	Summary string
	Score   float64
}

// Request carries everything a generator may use.
type Request struct {
	Subject    id.SubjectID
	Goal       string
	Focus      []string
	References []Reference
}

// Func generates protocol text for req. Implementations must return wellness
// language; the gate still screens the output regardless.
type Func func(ctx context.Context, req Request) (string, error)

// Deterministic is the default generator. Same request, same text.
func Deterministic(_ context.Context, req Request) (string, error) {
	if req.Goal == "" {
		return "", fmt.Errorf("generation request has no goal")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Wellness protocol: %s\n\n", req.Goal)

	if len(req.Focus) > 0 {
		focus := append([]string(nil), req.Focus...)
		sort.Strings(focus)
		fmt.Fprintf(&b, "Focus areas: %s.\n\n", strings.Join(focus, ", "))
	}

	refs := append([]Reference(nil), req.References...)
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return refs[i].ID < refs[j].ID
	})
	for i, ref := range refs {
		fmt.Fprintf(&b, "%d. %s", i+1, ref.Title)
		if ref.Summary != "" {
			fmt.Fprintf(&b, ": %s", compliance.Soften(ref.Summary))
		}
		b.WriteString("\n")
	}

	return compliance.WithDisclaimer(b.String()), nil
}

// Embed maps text to a fixed-dimension embedding. Token hashes are folded
// into buckets and the result is L2-normalized, so identical text always
// lands on the same vector. A model-backed deployment swaps this out the same
// way it swaps Func.
func Embed(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 64
	}
	out := make([]float32, dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?()[]\"'")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		bucket := int(sum % uint32(dim))
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		out[bucket] += sign
	}

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return out
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range out {
		out[i] *= scale
	}
	return out
}
