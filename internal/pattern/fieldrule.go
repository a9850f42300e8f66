package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"facturio/internal/domain"
)

// FieldRulePayload is the field-rule pattern payload. The rule itself lives in
// the signature (field plus value shape); the payload keeps the parts readable
// for review tooling.
type FieldRulePayload struct {
	Field string `json:"field"`
	Shape string `json:"shape"`
}

// InputShape reduces a field value to its format mask: digit runs become "9",
// letter runs become "A", everything else stays. "1.234,56" and "25.000,00"
// share the shape "9.9,9", so one reviewed derivation teaches the rule for
// every amount the same format produces.
func InputShape(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		c := r
		switch {
		case r >= '0' && r <= '9':
			c = '9'
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x00C0:
			c = 'A'
		}
		if (c == '9' || c == 'A') && c == last {
			continue
		}
		b.WriteRune(c)
		last = c
	}
	return b.String()
}

// LookupFieldRule reports whether reviewers have already vouched for derived
// values of this field and shape, and at what confidence.
func (c *Cache) LookupFieldRule(ctx context.Context, tenantID uuid.UUID, field, value string) (float64, bool, error) {
	sig := domain.FieldRuleSignature(field, InputShape(value))
	p, err := c.repo.GetBySignature(ctx, tenantID, domain.PatternFieldRule, sig)
	if err != nil {
		if errors.Is(err, domain.ErrPatternNotFound) {
			c.metrics.ObserveCacheLookup("field_rule", "miss")
			return 0, false, nil
		}
		return 0, false, err
	}

	c.touch(ctx, tenantID, p)
	c.metrics.ObserveCacheLookup("field_rule", "hit")
	return p.Confidence, true, nil
}

// ReinforceFieldRule folds a review decision on a derived field value into the
// rule for that field/shape pair. The first approval creates the rule at the
// initial confidence; every later decision moves it like any other pattern
// feedback. Rejections of a shape never seen do nothing.
func (c *Cache) ReinforceFieldRule(ctx context.Context, tenantID uuid.UUID, field, value string, approved bool) error {
	shape := InputShape(value)
	sig := domain.FieldRuleSignature(field, shape)

	unlock := c.lock(tenantID.String() + "|" + sig)
	defer unlock()

	existing, err := c.repo.GetBySignature(ctx, tenantID, domain.PatternFieldRule, sig)
	if errors.Is(err, domain.ErrPatternNotFound) {
		if !approved {
			return nil
		}
		payload, err := json.Marshal(FieldRulePayload{Field: field, Shape: shape})
		if err != nil {
			return fmt.Errorf("marshaling field rule payload: %w", err)
		}
		now := c.now()
		return c.repo.Create(ctx, &domain.Pattern{
			ID:         uuid.New(),
			TenantID:   tenantID,
			Kind:       domain.PatternFieldRule,
			Signature:  sig,
			Payload:    payload,
			HitCount:   0,
			Confidence: c.cfg.InitialTemplate,
			Active:     true,
			LastUsedAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err != nil {
		return err
	}
	return c.Feedback(ctx, tenantID, existing.ID, approved)
}
