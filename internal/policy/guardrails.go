// Package policy is the decision layer between an ingested attack event and
// a durable mitigation: guardrails (hard limits), the event correlator
// (scope coalescing), the escalation evaluator (police -> discard), and the
// playbook-driven policy engine that turns an event into an intent.
package policy

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/perr"
	"github.com/lance0/prefixd-sub000/internal/repository"
)

// Guardrails enforces the hard limits a mitigation intent must satisfy
// before it is allowed to become a durable mitigation: TTL presence, prefix
// length bounds, port count, and per-customer/per-POP/global quotas.
type Guardrails struct {
	config config.GuardrailsConfig
	quotas config.QuotasConfig
}

func NewGuardrails(cfg config.GuardrailsConfig, quotas config.QuotasConfig) *Guardrails {
	return &Guardrails{config: cfg, quotas: quotas}
}

// Validate runs every guardrail in order, returning the first violation.
func (g *Guardrails) Validate(ctx context.Context, intent domain.MitigationIntent, repo repository.Repository, isSafelisted bool) error {
	if isSafelisted {
		return perr.GuardrailViolation(fmt.Sprintf("destination %s is safelisted", intent.MatchCriteria.DstPrefix))
	}
	if err := g.validateTTL(intent.TTLSeconds); err != nil {
		return err
	}
	if err := g.validatePrefixLength(intent.MatchCriteria); err != nil {
		return err
	}
	if err := g.validatePortCount(intent.MatchCriteria); err != nil {
		return err
	}
	return g.validateQuotas(ctx, intent, repo)
}

func (g *Guardrails) validateTTL(ttl uint32) error {
	if g.config.RequireTTL && ttl == 0 {
		return perr.GuardrailViolation("ttl_seconds is required and must be non-zero")
	}
	return nil
}

func (g *Guardrails) validatePrefixLength(criteria domain.MatchCriteria) error {
	isV6 := isIPv6Prefix(criteria.DstPrefix)
	prefixLen := extractPrefixLength(criteria.DstPrefix, isV6)

	min, max := g.config.DstPrefixMinLen, g.config.DstPrefixMaxLen
	if isV6 {
		min, max = 128, 128
		if g.config.DstPrefixMinLenV6 != nil {
			min = *g.config.DstPrefixMinLenV6
		}
		if g.config.DstPrefixMaxLenV6 != nil {
			max = *g.config.DstPrefixMaxLenV6
		}
	}

	if prefixLen < min || prefixLen > max {
		return perr.GuardrailViolation(fmt.Sprintf(
			"prefix length /%d outside allowed range [/%d, /%d]", prefixLen, min, max))
	}
	return nil
}

func (g *Guardrails) validatePortCount(criteria domain.MatchCriteria) error {
	if len(criteria.DstPorts) > g.config.MaxPorts {
		return perr.GuardrailViolation(fmt.Sprintf(
			"%d destination ports exceeds max_ports %d", len(criteria.DstPorts), g.config.MaxPorts))
	}
	return nil
}

func (g *Guardrails) validateQuotas(ctx context.Context, intent domain.MitigationIntent, repo repository.Repository) error {
	if intent.CustomerID != nil {
		count, err := repo.CountActiveByCustomer(ctx, *intent.CustomerID)
		if err != nil {
			return perr.Wrap(perr.KindDatabase, "counting active mitigations for customer", err)
		}
		if count >= g.quotas.MaxActivePerCustomer {
			return perr.GuardrailViolation(fmt.Sprintf(
				"customer quota exceeded: %d/%d active mitigations", count, g.quotas.MaxActivePerCustomer))
		}
	}

	popCount, err := repo.CountActiveByPOP(ctx, intent.POP)
	if err != nil {
		return perr.Wrap(perr.KindDatabase, "counting active mitigations for pop", err)
	}
	if popCount >= g.quotas.MaxActivePerPOP {
		return perr.GuardrailViolation(fmt.Sprintf(
			"pop quota exceeded: %d/%d active mitigations", popCount, g.quotas.MaxActivePerPOP))
	}

	globalCount, err := repo.CountActiveGlobal(ctx)
	if err != nil {
		return perr.Wrap(perr.KindDatabase, "counting active mitigations globally", err)
	}
	if globalCount >= g.quotas.MaxActiveGlobal {
		return perr.GuardrailViolation(fmt.Sprintf(
			"global quota exceeded: %d/%d active mitigations", globalCount, g.quotas.MaxActiveGlobal))
	}

	return nil
}

// isIPv6Prefix parses the address portion of a CIDR (or bare IP) and reports
// whether it's IPv6 — never a ':' heuristic, which misclassifies scoped or
// malformed addresses.
func isIPv6Prefix(prefix string) bool {
	addrPart := prefix
	if idx := strings.IndexByte(prefix, '/'); idx >= 0 {
		addrPart = prefix[:idx]
	}
	ip := net.ParseIP(addrPart)
	return ip != nil && ip.To4() == nil
}

func extractPrefixLength(prefix string, isV6 bool) uint8 {
	def := uint8(32)
	if isV6 {
		def = 128
	}
	idx := strings.IndexByte(prefix, '/')
	if idx < 0 {
		return def
	}
	n, err := strconv.Atoi(prefix[idx+1:])
	if err != nil || n < 0 || n > 255 {
		return def
	}
	return uint8(n)
}
