package announcer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lance0/prefixd-sub000/internal/bgpapi"
	"github.com/lance0/prefixd-sub000/internal/flowspec"
)

const (
	connectTimeout  = 10 * time.Second
	rpcTimeout      = 30 * time.Second
	retryInitial    = 100 * time.Millisecond
	retryMultiplier = 2.0
	retryMaxCount   = 3
)

// GRPCDriver is the production Announcer: a single long-lived connection to
// the BGP speaker, one RPC per call, each call wrapped in the retry policy
// below. The connection is established once at construction; every RPC
// reuses the same *grpc.ClientConn (grpc-go multiplexes streams over it
// internally, so there's no per-call dial).
type GRPCDriver struct {
	client bgpapi.GobgpApiClient
	conn   *grpc.ClientConn
}

// Dial connects to the speaker at addr, failing if the connection can't be
// established within connectTimeout.
func Dial(addr string) (*GRPCDriver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("announcer: dialing speaker at %s: %w", addr, err)
	}
	conn.Connect()
	for {
		state := conn.GetState()
		if state.String() == "READY" {
			break
		}
		if !conn.WaitForStateChange(ctx, state) {
			conn.Close()
			return nil, fmt.Errorf("announcer: speaker at %s did not become ready: %w", addr, ctx.Err())
		}
	}

	return &GRPCDriver{client: bgpapi.NewGobgpApiClient(conn), conn: conn}, nil
}

func (d *GRPCDriver) Close() error { return d.conn.Close() }

func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.Multiplier = retryMultiplier
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall-clock
	return backoff.WithContext(backoff.WithMaxRetries(b, retryMaxCount), ctx)
}

func withRPCTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, rpcTimeout)
}

func toAPIPath(rule flowspec.Rule) (bgpapi.Path, error) {
	enc, err := flowspec.Encode(rule.Nlri)
	if err != nil {
		return bgpapi.Path{}, err
	}

	nlri := bgpapi.Nlri{AFI: enc.AFI, PrefixBits: enc.PrefixBits, PrefixAddr: enc.PrefixAddr}
	if enc.Protocol != nil {
		v := uint16(enc.Protocol.Op)<<8 | uint16(enc.Protocol.Value)
		nlri.Protocol = &v
	}
	for _, p := range enc.DstPorts {
		nlri.DstPorts = append(nlri.DstPorts, uint32(p.Op)<<16|uint32(p.Value))
	}

	_, communities := flowspec.EncodeAction(rule.Action)
	apiCommunities := make([]bgpapi.ExtendedCommunity, len(communities))
	for i, c := range communities {
		apiCommunities[i] = bgpapi.ExtendedCommunity{Type: c.Type, Subtype: c.Subtype, RateBPS: c.RateBPS}
	}

	return bgpapi.Path{SAFI: flowspec.SAFIFlowSpec, Nlri: nlri, Communities: apiCommunities}, nil
}

func fromAPIPath(p bgpapi.Path) (flowspec.Rule, error) {
	nlri, err := flowspec.Decode(flowspec.EncodedNlri{
		AFI:        p.Nlri.AFI,
		PrefixBits: p.Nlri.PrefixBits,
		PrefixAddr: p.Nlri.PrefixAddr,
	})
	if err != nil {
		return flowspec.Rule{}, err
	}
	if p.Nlri.Protocol != nil {
		proto := uint8(*p.Nlri.Protocol & 0xFF)
		nlri.Protocol = &proto
	}
	for _, raw := range p.Nlri.DstPorts {
		nlri.DstPorts = append(nlri.DstPorts, uint16(raw&0xFFFF))
	}

	communities := make([]flowspec.ExtendedCommunity, len(p.Communities))
	for i, c := range p.Communities {
		communities[i] = flowspec.ExtendedCommunity{Type: c.Type, Subtype: c.Subtype, RateBPS: c.RateBPS}
	}
	action := flowspec.DecodeAction(communities)

	return flowspec.Rule{Nlri: nlri, Action: action}, nil
}

func (d *GRPCDriver) Announce(ctx context.Context, rule flowspec.Rule) error {
	path, err := toAPIPath(rule)
	if err != nil {
		return err
	}
	return backoff.Retry(func() error {
		rctx, cancel := withRPCTimeout(ctx)
		defer cancel()
		_, err := d.client.AddPath(rctx, &bgpapi.AddPathRequest{Path: path})
		return err
	}, retryPolicy(ctx))
}

func (d *GRPCDriver) Withdraw(ctx context.Context, rule flowspec.Rule) error {
	path, err := toAPIPath(rule)
	if err != nil {
		return err
	}
	return backoff.Retry(func() error {
		rctx, cancel := withRPCTimeout(ctx)
		defer cancel()
		_, err := d.client.DeletePath(rctx, &bgpapi.DeletePathRequest{Path: path})
		return err
	}, retryPolicy(ctx))
}

// ListActive spans both the IPv4 and IPv6 FlowSpec tables. IPv6 FlowSpec
// may not be configured on the speaker; an error on one family is
// tolerated so the other family's rules are still returned.
func (d *GRPCDriver) ListActive(ctx context.Context) ([]flowspec.Rule, error) {
	var rules []flowspec.Rule
	var lastErr error
	ok := false

	for _, afi := range []uint16{flowspec.AFIIPv4, flowspec.AFIIPv6} {
		afiRules, err := d.listActiveForAFI(ctx, afi)
		if err != nil {
			lastErr = err
			continue
		}
		ok = true
		rules = append(rules, afiRules...)
	}

	if !ok {
		return nil, fmt.Errorf("announcer: listing active paths for all address families: %w", lastErr)
	}
	return rules, nil
}

func (d *GRPCDriver) listActiveForAFI(ctx context.Context, afi uint16) ([]flowspec.Rule, error) {
	var resp *bgpapi.ListPathResponse
	err := backoff.Retry(func() error {
		rctx, cancel := withRPCTimeout(ctx)
		defer cancel()
		r, err := d.client.ListPath(rctx, &bgpapi.ListPathRequest{AFI: afi, SAFI: flowspec.SAFIFlowSpec})
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, retryPolicy(ctx))
	if err != nil {
		return nil, err
	}

	rules := make([]flowspec.Rule, 0, len(resp.Paths))
	for _, p := range resp.Paths {
		rule, err := fromAPIPath(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (d *GRPCDriver) SessionStatus(ctx context.Context) ([]PeerStatus, error) {
	var resp *bgpapi.ListPeerResponse
	err := backoff.Retry(func() error {
		rctx, cancel := withRPCTimeout(ctx)
		defer cancel()
		r, err := d.client.ListPeer(rctx, &bgpapi.ListPeerRequest{})
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, retryPolicy(ctx))
	if err != nil {
		return nil, err
	}

	statuses := make([]PeerStatus, len(resp.Peers))
	for i, p := range resp.Peers {
		statuses[i] = PeerStatus{Name: p.Name, Address: p.Address, State: fromAPIState(p.State)}
	}
	return statuses, nil
}
