package policy

import (
	"context"
	"testing"

	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/perr"
	"github.com/lance0/prefixd-sub000/internal/repository"
)

func strictConfig() (config.GuardrailsConfig, config.QuotasConfig) {
	return config.GuardrailsConfig{
			RequireTTL:      true,
			DstPrefixMinLen: 32,
			DstPrefixMaxLen: 32,
			MaxPorts:        8,
		}, config.QuotasConfig{
			MaxActivePerCustomer: 5,
			MaxActivePerPOP:      200,
			MaxActiveGlobal:      500,
		}
}

func relaxedConfig() (config.GuardrailsConfig, config.QuotasConfig) {
	v6min, v6max := uint8(64), uint8(128)
	return config.GuardrailsConfig{
			RequireTTL:        false,
			DstPrefixMinLen:   24,
			DstPrefixMaxLen:   32,
			DstPrefixMinLenV6: &v6min,
			DstPrefixMaxLenV6: &v6max,
			MaxPorts:          16,
		}, config.QuotasConfig{
			MaxActivePerCustomer: 100,
			MaxActivePerPOP:      1000,
			MaxActiveGlobal:      5000,
		}
}

func requireGuardrailViolation(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	pe, ok := perr.As(err)
	if !ok || pe.Kind != perr.KindGuardrailViolation {
		t.Fatalf("err = %v, want KindGuardrailViolation", err)
	}
}

func TestValidateTTLRequiredWithZero(t *testing.T) {
	g, q := strictConfig()
	gr := NewGuardrails(g, q)
	requireGuardrailViolation(t, gr.validateTTL(0))
}

func TestValidateTTLRequiredWithValue(t *testing.T) {
	g, q := strictConfig()
	gr := NewGuardrails(g, q)
	for _, ttl := range []uint32{60, 3600, 1} {
		if err := gr.validateTTL(ttl); err != nil {
			t.Fatalf("validateTTL(%d) = %v, want nil", ttl, err)
		}
	}
}

func TestValidateTTLNotRequired(t *testing.T) {
	g, q := relaxedConfig()
	gr := NewGuardrails(g, q)
	if err := gr.validateTTL(0); err != nil {
		t.Fatalf("validateTTL(0) = %v, want nil", err)
	}
}

func TestValidatePrefixLengthIPv4(t *testing.T) {
	g, q := strictConfig()
	gr := NewGuardrails(g, q)

	valid := domain.MatchCriteria{DstPrefix: "203.0.113.10/32", DstPorts: []uint16{53}}
	if err := gr.validatePrefixLength(valid); err != nil {
		t.Fatalf("valid /32: %v", err)
	}

	tooShort := domain.MatchCriteria{DstPrefix: "203.0.113.0/24", DstPorts: []uint16{53}}
	requireGuardrailViolation(t, gr.validatePrefixLength(tooShort))
}

func TestValidatePrefixLengthIPv4Relaxed(t *testing.T) {
	g, q := relaxedConfig()
	gr := NewGuardrails(g, q)

	if err := gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "203.0.113.0/24"}); err != nil {
		t.Fatalf("/24 under relaxed config: %v", err)
	}
	if err := gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "203.0.113.10/32"}); err != nil {
		t.Fatalf("/32 under relaxed config: %v", err)
	}
	requireGuardrailViolation(t, gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "203.0.0.0/16"}))
}

func TestValidatePrefixLengthIPv6Default(t *testing.T) {
	g, q := strictConfig()
	gr := NewGuardrails(g, q)

	if err := gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "2001:db8::1/128"}); err != nil {
		t.Fatalf("valid /128: %v", err)
	}
	requireGuardrailViolation(t, gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "2001:db8::/64"}))
}

func TestValidatePrefixLengthIPv6Relaxed(t *testing.T) {
	g, q := relaxedConfig()
	gr := NewGuardrails(g, q)

	if err := gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "2001:db8::/64"}); err != nil {
		t.Fatalf("/64 under relaxed config: %v", err)
	}
	requireGuardrailViolation(t, gr.validatePrefixLength(domain.MatchCriteria{DstPrefix: "2001:db8::/48"}))
}

func TestValidatePortCount(t *testing.T) {
	g, q := strictConfig()
	gr := NewGuardrails(g, q)

	if err := gr.validatePortCount(domain.MatchCriteria{DstPorts: []uint16{53, 80, 443, 8080}}); err != nil {
		t.Fatalf("4 ports: %v", err)
	}
	eight := make([]uint16, 8)
	if err := gr.validatePortCount(domain.MatchCriteria{DstPorts: eight}); err != nil {
		t.Fatalf("8 ports (at limit): %v", err)
	}
	nine := make([]uint16, 9)
	requireGuardrailViolation(t, gr.validatePortCount(domain.MatchCriteria{DstPorts: nine}))
}

func TestValidateQuotasCustomer(t *testing.T) {
	g, q := strictConfig()
	gr := NewGuardrails(g, q)
	repo := repository.NewMock()
	ctx := context.Background()

	customerID := "cust_1"
	for i := 0; i < int(q.MaxActivePerCustomer); i++ {
		m := domain.Mitigation{
			MitigationID: "m" + string(rune('a'+i)),
			ScopeHash:    "scope" + string(rune('a'+i)),
			POP:          "iad1",
			CustomerID:   &customerID,
			Status:       domain.StatusActive,
		}
		if err := repo.InsertMitigation(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	intent := domain.MitigationIntent{CustomerID: &customerID, POP: "iad1"}
	requireGuardrailViolation(t, gr.validateQuotas(ctx, intent, repo))
}
