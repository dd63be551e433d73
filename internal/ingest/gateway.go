package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"scfingest/internal/blobstore"
)

const panicReason = "storage error: internal failure"

// Observer receives per-slot and per-ingest outcomes.
type Observer interface {
	RecordPart(slot string, status Status, sizeBytes int64)
	RecordIngest(overall Overall, duration time.Duration)
}

// Gateway validates submissions against a manifest and relays accepted
// parts to a blob store.
type Gateway struct {
	store       blobstore.BlobStore
	namespace   string
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithNamespace sets the namespace storage keys are derived under.
func WithNamespace(namespace string) Option {
	return func(g *Gateway) { g.namespace = NormalizeNamespace(namespace) }
}

// WithConcurrency bounds how many puts run at once. Zero or less means one
// goroutine per accepted slot.
func WithConcurrency(n int) Option {
	return func(g *Gateway) { g.concurrency = n }
}

// WithObserver attaches telemetry.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a gateway writing to store.
func NewGateway(store blobstore.BlobStore, opts ...Option) *Gateway {
	g := &Gateway{store: store}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Namespace returns the normalized namespace keys are derived under.
func (g *Gateway) Namespace() string {
	return g.namespace
}

// KeyFor returns the storage key the gateway uses for slot.
func (g *Gateway) KeyFor(slot Slot) string {
	return DeriveKey(g.namespace, slot)
}

// Ingest validates every manifest slot in order, stores the accepted parts
// and returns one PartResult per slot. Storage failures never abort the
// remaining slots; they surface as StatusFailed parts. The returned error is
// only set when the inputs themselves are unusable (nil manifest, unknown
// slot names).
func (g *Gateway) Ingest(ctx context.Context, sub *Submission, m *Manifest) (Result, error) {
	if g == nil || g.store == nil {
		return Result{}, errors.New("ingest gateway is not configured")
	}
	if m.Len() == 0 {
		return Result{}, errors.New("manifest is required")
	}
	if sub == nil {
		sub = NewSubmission()
	}
	if err := sub.Validate(m); err != nil {
		return Result{}, err
	}

	start := time.Now()
	slots := m.Slots()
	parts := make([]PartResult, len(slots))
	accepted := make([]int, 0, len(slots))
	for i, slot := range slots {
		part, present := sub.Part(slot.Name)
		res, ok := validatePart(slot, part, present)
		parts[i] = res
		if ok {
			accepted = append(accepted, i)
		}
	}

	var group errgroup.Group
	limit := g.concurrency
	if limit <= 0 || limit > len(accepted) {
		limit = len(accepted)
	}
	if limit > 0 {
		group.SetLimit(limit)
	}
	for _, i := range accepted {
		slot := slots[i]
		part, _ := sub.Part(slot.Name)
		group.Go(func() error {
			parts[i] = g.storePart(ctx, slot, part, parts[i])
			return nil
		})
	}
	_ = group.Wait()

	result := Result{Overall: Aggregate(m, parts), Parts: parts}
	if g.observer != nil {
		for _, p := range parts {
			g.observer.RecordPart(p.Slot, p.Status, p.SizeBytes)
		}
		g.observer.RecordIngest(result.Overall, time.Since(start))
	}
	return result, nil
}

func validatePart(slot Slot, part Part, present bool) (PartResult, bool) {
	res := PartResult{Slot: slot.Name}
	if !present {
		if slot.Required {
			res.Status = StatusRejected
			res.Reason = ReasonMissingRequired
		} else {
			res.Status = StatusSkipped
		}
		return res, false
	}

	res.Filename = part.Filename
	res.SizeBytes = part.Size
	if !slot.Allows(part.Filename) {
		res.Status = StatusRejected
		res.Reason = ReasonUnsupportedExtension
		return res, false
	}
	if res.SizeBytes > slot.MaxSizeBytes {
		res.Status = StatusRejected
		res.Reason = ReasonTooLarge
		return res, false
	}
	return res, true
}

func (g *Gateway) storePart(ctx context.Context, slot Slot, part Part, res PartResult) (out PartResult) {
	key := g.KeyFor(slot)
	defer func() {
		if r := recover(); r != nil {
			g.log().Error("blob store panicked", "slot", slot.Name, "key", key, "panic", r)
			out = res
			out.Status = StatusFailed
			out.Reason = panicReason
		}
	}()

	if err := g.store.Put(ctx, key, part.Payload); err != nil {
		g.log().Warn("store part failed", "slot", slot.Name, "key", key, "size_bytes", len(part.Payload), "error", err)
		res.Status = StatusFailed
		res.Reason = blobstore.Reason(err)
		return res
	}
	res.Status = StatusStored
	res.StorageKey = key
	return res
}

func (g *Gateway) log() *slog.Logger {
	if g != nil && g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
