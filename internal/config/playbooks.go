package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// Playbooks is the static vector-to-action mapping (L5).
type Playbooks struct {
	Playbooks []Playbook `yaml:"playbooks"`
}

type Playbook struct {
	Name    string         `yaml:"name"`
	Match   PlaybookMatch  `yaml:"match"`
	Steps   []PlaybookStep `yaml:"steps"`
}

type PlaybookMatch struct {
	Vector           domain.AttackVector `yaml:"vector"`
	RequireTopPorts bool                `yaml:"require_top_ports"`
}

type PlaybookStep struct {
	Action                      PlaybookAction `yaml:"action"`
	RateBPS                     *uint64        `yaml:"rate_bps"`
	TTLSeconds                  uint32         `yaml:"ttl_seconds"`
	RequireConfidenceAtLeast    *float64       `yaml:"require_confidence_at_least"`
	RequirePersistenceSeconds   *uint32        `yaml:"require_persistence_seconds"`
}

type PlaybookAction string

const (
	PlaybookActionPolice  PlaybookAction = "police"
	PlaybookActionDiscard PlaybookAction = "discard"
)

func LoadPlaybooks(path string) (*Playbooks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading playbooks file: %w", err)
	}
	var pb Playbooks
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parsing playbooks: %w", err)
	}
	return &pb, nil
}

// Find returns the first playbook whose (vector, require_top_ports) matches.
func (p *Playbooks) Find(vector domain.AttackVector, hasPorts bool) *Playbook {
	for i := range p.Playbooks {
		pb := &p.Playbooks[i]
		if pb.Match.Vector == vector && (!pb.Match.RequireTopPorts || hasPorts) {
			return pb
		}
	}
	return nil
}

// InitialStep is the first step of a playbook, applied on first ingest.
func (p *Playbook) InitialStep() *PlaybookStep {
	if len(p.Steps) == 0 {
		return nil
	}
	return &p.Steps[0]
}
