package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// Inventory is the static customer/service ownership map (L4). A direct
// per-asset index hit wins; otherwise ownership goes to the customer with
// the longest prefix containing the IP.
type Inventory struct {
	Customers []Customer `yaml:"customers"`

	assetIndex map[string]assetOwner // exact IP string -> owner, built once
}

type assetOwner struct {
	customerID string
	serviceID  string
}

type Customer struct {
	CustomerID    string               `yaml:"customer_id"`
	Name          string               `yaml:"name"`
	Prefixes      []string             `yaml:"prefixes"`
	PolicyProfile domain.PolicyProfile `yaml:"policy_profile"`
	Services      []Service            `yaml:"services"`
}

type Service struct {
	ServiceID    string       `yaml:"service_id"`
	Name         string       `yaml:"name"`
	Assets       []Asset      `yaml:"assets"`
	AllowedPorts AllowedPorts `yaml:"allowed_ports"`
}

type Asset struct {
	IP   string  `yaml:"ip"`
	Role *string `yaml:"role"`
}

type AllowedPorts struct {
	UDP []uint16 `yaml:"udp"`
	TCP []uint16 `yaml:"tcp"`
}

// IPContext is the resolved ownership/policy context for a victim IP.
type IPContext struct {
	CustomerID    string
	CustomerName  string
	PolicyProfile domain.PolicyProfile
	ServiceID     *string
	ServiceName   *string
	AllowedPorts  AllowedPorts
}

func defaultPolicyProfile() domain.PolicyProfile { return domain.ProfileNormal }

// LoadInventory reads and indexes the customer inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	inv.normalize()
	inv.buildIndex()
	return &inv, nil
}

func NewInventory(customers []Customer) *Inventory {
	inv := &Inventory{Customers: customers}
	inv.normalize()
	inv.buildIndex()
	return inv
}

func (inv *Inventory) normalize() {
	for i := range inv.Customers {
		if inv.Customers[i].PolicyProfile == "" {
			inv.Customers[i].PolicyProfile = defaultPolicyProfile()
		}
	}
}

func (inv *Inventory) buildIndex() {
	inv.assetIndex = make(map[string]assetOwner)
	for _, c := range inv.Customers {
		for _, svc := range c.Services {
			for _, asset := range svc.Assets {
				ip := net.ParseIP(asset.IP)
				if ip == nil {
					continue
				}
				inv.assetIndex[ip.String()] = assetOwner{customerID: c.CustomerID, serviceID: svc.ServiceID}
			}
		}
	}
}

// LookupIP resolves ownership by exact asset match first, falling back to
// the longest customer CIDR containing the IP. Works uniformly across IPv4
// and IPv6; the address family is determined by parsing, never by string
// heuristics.
func (inv *Inventory) LookupIP(ipStr string) *IPContext {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil
	}

	if owner, ok := inv.assetIndex[ip.String()]; ok {
		return inv.buildContext(owner.customerID, &owner.serviceID)
	}

	bestID, bestLen := "", -1
	for _, c := range inv.Customers {
		for _, prefixStr := range c.Prefixes {
			_, network, err := net.ParseCIDR(prefixStr)
			if err != nil {
				continue
			}
			if ones, _ := network.Mask.Size(); network.Contains(ip) && ones > bestLen {
				bestID, bestLen = c.CustomerID, ones
			}
		}
	}
	if bestLen >= 0 {
		return inv.buildContext(bestID, nil)
	}

	return nil
}

func (inv *Inventory) buildContext(customerID string, serviceID *string) *IPContext {
	var customer *Customer
	for i := range inv.Customers {
		if inv.Customers[i].CustomerID == customerID {
			customer = &inv.Customers[i]
			break
		}
	}
	if customer == nil {
		return nil
	}

	ctx := &IPContext{
		CustomerID:    customer.CustomerID,
		CustomerName:  customer.Name,
		PolicyProfile: customer.PolicyProfile,
	}

	if serviceID != nil {
		for _, svc := range customer.Services {
			if svc.ServiceID == *serviceID {
				ctx.ServiceID = &svc.ServiceID
				name := svc.Name
				ctx.ServiceName = &name
				ctx.AllowedPorts = svc.AllowedPorts
				break
			}
		}
	}

	return ctx
}

// IsOwned reports whether any customer claims the IP.
func (inv *Inventory) IsOwned(ipStr string) bool {
	return inv.LookupIP(ipStr) != nil
}
