package replace

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cloaked-ai/cloak/engine/core"
)

// PseudonymStrategy replaces originals with realistic fake values of the same
// kind, so the model sees plausible text instead of bracketed tokens. The
// faker is seeded from the thread id and the original, which makes the
// pseudonym stable across turns without consulting the store.
type PseudonymStrategy struct {
	locale string
}

// NewPseudonymStrategy builds the strategy. The locale steers
// country-specific formats such as IBAN prefixes; empty defaults to "de".
func NewPseudonymStrategy(locale string) *PseudonymStrategy {
	if locale == "" {
		locale = "de"
	}
	return &PseudonymStrategy{locale: strings.ToLower(locale)}
}

// CreatePlaceholder implements Strategy.
func (p *PseudonymStrategy) CreatePlaceholder(_ context.Context, thread core.ThreadID, original, label string) (string, error) {
	faker := gofakeit.New(pseudonymSeed(thread, original))
	switch strings.ToLower(label) {
	case "person", "name":
		return faker.Name(), nil
	case "email", "email_address":
		return faker.Email(), nil
	case "phone_number", "phone":
		return faker.Phone(), nil
	case "address":
		return faker.Address().Address, nil
	case "location", "city":
		return faker.City(), nil
	case "credit_card", "credit_card_number":
		return faker.CreditCardNumber(nil), nil
	case "iban":
		return p.ibanPrefix() + faker.Numerify(strings.Repeat("#", 20)), nil
	case "german_medical_insurance_id":
		return strings.ToUpper(faker.LetterN(1)) + faker.DigitN(9), nil
	default:
		return "", core.NewError(
			fmt.Errorf("no pseudonym generator for label %q", label),
			core.ErrCodeUnsupportedEntity,
			map[string]any{"label": label},
		)
	}
}

// Name implements Strategy.
func (p *PseudonymStrategy) Name() string {
	return StrategyPseudonym
}

func (p *PseudonymStrategy) ibanPrefix() string {
	switch p.locale {
	case "de":
		return "DE"
	case "at":
		return "AT"
	case "ch":
		return "CH"
	case "fr":
		return "FR"
	case "nl":
		return "NL"
	case "gb", "uk", "en":
		return "GB"
	default:
		return strings.ToUpper(p.locale)
	}
}

// pseudonymSeed folds the thread id and the original into the faker seed so
// the same original yields the same pseudonym within a thread, and different
// originals get independent pseudonyms.
func pseudonymSeed(thread core.ThreadID, original string) uint64 {
	digest := sha256.New()
	digest.Write(thread.Bytes())
	digest.Write([]byte(original))
	return binary.BigEndian.Uint64(digest.Sum(nil)[:8])
}
