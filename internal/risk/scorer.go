// Package risk combines stored abuse flags and fresh detection signals into
// a bounded risk score and an allow / require-verification / block decision.
package risk

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/openquill-team/riskgate/internal/identity"
	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/models"
	"github.com/openquill-team/riskgate/internal/signals"
)

// Thresholds partition the score space. The partition is contiguous:
// allow [0, Verify), verify [Verify, Block), block [Block, 100].
type Thresholds struct {
	Verify int `yaml:"verify"`
	Block  int `yaml:"block"`
}

// DefaultThresholds is the production partition.
var DefaultThresholds = Thresholds{Verify: 50, Block: 75}

// Validate rejects partitions that leave scores unclassified.
func (t Thresholds) Validate() error {
	if t.Verify < 0 || t.Block <= t.Verify || t.Block > 100 {
		return errors.New("thresholds must satisfy 0 <= verify < block <= 100")
	}
	return nil
}

// DegradedScore is the fixed moderate score substituted when scoring itself
// fails. The gated feature stays available; the assessment is flagged so the
// caller can tell a degraded pass from a clean one.
const DegradedScore = 40

// Assessment is the transient output of one scoring invocation.
type Assessment struct {
	Allowed              bool     `json:"allowed"`
	RequiresVerification bool     `json:"requiresVerification"`
	Score                int      `json:"riskScore"`
	Reasons              []string `json:"-"`
	Degraded             bool     `json:"-"`
}

// Reason renders the triggered signal names for block/verify responses and
// support-desk triage.
func (a Assessment) Reason() string {
	return signals.JoinReasons(a.Reasons)
}

// Scorer evaluates identities against the ledger and the signal collectors.
type Scorer struct {
	store      ledger.Store
	detector   *signals.Detector
	thresholds Thresholds
}

// NewScorer creates a scorer with the default thresholds.
func NewScorer(store ledger.Store, detector *signals.Detector) *Scorer {
	return NewScorerWith(store, detector, DefaultThresholds)
}

// NewScorerWith creates a scorer with explicit thresholds.
func NewScorerWith(store ledger.Store, detector *signals.Detector, t Thresholds) *Scorer {
	if err := t.Validate(); err != nil {
		t = DefaultThresholds
	}
	return &Scorer{store: store, detector: detector, thresholds: t}
}

// Score evaluates one request. The expensive network collectors run only on
// first sighting; thereafter the stored flags are folded in directly and
// only the cheap user-agent checks run fresh. Unexpected internal failure
// never reaches the caller: the assessment degrades to a fixed moderate
// score instead.
func (s *Scorer) Score(ctx context.Context, id identity.Identity) (a Assessment) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: risk scoring panicked for %s: %v", id.Key(), r)
			a = s.degraded()
		}
	}()

	score := 0
	var reasons []string
	degraded := false
	banned := false

	// Private/local addresses are checked fresh on every request. They
	// indicate misconfigured proxying rather than a real consumer.
	if sig, ok := signals.CheckPrivateIP(id.Address); ok {
		score += sig.Score
		reasons = append(reasons, sig.Reason)
	}

	rec, err := s.store.Get(ctx, id.Key())
	switch {
	case err == nil:
		if rec.Banned {
			banned = true
			score += signals.ScoreBanned
			reasons = append(reasons, "IP is banned")
		}
		if rec.VPN {
			score += signals.ScoreVPN
			reasons = append(reasons, "VPN provider detected")
		}
		if rec.Proxy {
			score += signals.ScoreProxyFlag
			reasons = append(reasons, "Proxy provider detected")
		}
		if rec.Datacenter {
			score += signals.ScoreDatacenter
			reasons = append(reasons, "Datacenter IP detected")
		}
		if terr := s.store.Touch(ctx, id.Key(), time.Now()); terr != nil {
			log.Printf("ERROR: failed to touch abuse record for %s: %v", id.Key(), terr)
		}

	case errors.Is(err, ledger.ErrNotFound):
		res := s.detector.CollectNetwork(ctx, id.Address)
		degraded = res.Degraded
		for _, sig := range res.Signals {
			score += sig.Score
			reasons = append(reasons, sig.Reason)
		}
		if cerr := s.persistFirstSighting(ctx, id, res); cerr != nil {
			log.Printf("ERROR: failed to persist abuse record for %s: %v", id.Key(), cerr)
		}

	default:
		// Ledger unavailable. Fail open with a moderate score rather than
		// taking down the gated feature; the condition is logged and the
		// assessment marked degraded so callers can distinguish it.
		log.Printf("ERROR: abuse ledger lookup failed for %s: %v", id.Key(), err)
		return s.degraded()
	}

	// User-agent checks are cheap and always fresh regardless of cache state.
	for _, sig := range signals.CheckUserAgentSignals(id.UserAgent, id.Fingerprint) {
		score += sig.Score
		reasons = append(reasons, sig.Reason)
	}

	score = clamp(score)

	a = Assessment{
		Allowed:              score < s.thresholds.Block,
		RequiresVerification: score >= s.thresholds.Verify && score < s.thresholds.Block,
		Score:                score,
		Reasons:              reasons,
		Degraded:             degraded,
	}

	// A stored ban always blocks, independent of threshold arithmetic.
	if banned {
		a.Allowed = false
		a.RequiresVerification = false
	}
	return a
}

// ForceRecheck re-runs the network collectors against an existing record and
// persists the refreshed flags. The ban flag is never cleared here, only an
// explicit admin override does that.
func (s *Scorer) ForceRecheck(ctx context.Context, id identity.Identity) (Assessment, error) {
	res := s.detector.CollectNetwork(ctx, id.Address)

	vpn := res.Has(signals.KindVPN)
	proxy := res.Has(signals.KindProxy)
	datacenter := res.Has(signals.KindDatacenter)
	riskScore := clamp(res.Total())

	err := s.store.Update(ctx, id.Key(), ledger.Patch{
		VPN:        &vpn,
		Proxy:      &proxy,
		Datacenter: &datacenter,
		RiskScore:  &riskScore,
	})
	if err != nil {
		return Assessment{}, err
	}
	return s.Score(ctx, id), nil
}

func (s *Scorer) persistFirstSighting(ctx context.Context, id identity.Identity, res signals.Result) error {
	rec := models.NewAbuseRecord(id.Address, id.UserAgent, id.Fingerprint)
	rec.VPN = res.Has(signals.KindVPN)
	rec.Proxy = res.Has(signals.KindProxy)
	rec.Datacenter = res.Has(signals.KindDatacenter)
	rec.RiskScore = clamp(res.Total())
	return s.store.Create(ctx, rec)
}

func (s *Scorer) degraded() Assessment {
	return Assessment{
		Allowed:              DegradedScore < s.thresholds.Block,
		RequiresVerification: DegradedScore >= s.thresholds.Verify,
		Score:                DegradedScore,
		Reasons:              []string{signals.ReasonDetectionError},
		Degraded:             true,
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
