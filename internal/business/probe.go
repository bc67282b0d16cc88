package business

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/cmdutils"
	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/endsession"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/client"
	"github.com/openkcm/session-client/pkg/session"
	sessioninmem "github.com/openkcm/session-client/pkg/session/inmem"
	sessionvalkey "github.com/openkcm/session-client/pkg/session/valkey"
)

const categoryOK = "ok"

// ProbeMain keeps a session against the configured ERP API and probes it
// periodically until ctx is done.
func ProbeMain(ctx context.Context, cfg *config.Config) error {
	markers, closeFn, err := markerRepositoryFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initialising the marker repository: %w", err)
	}
	defer closeFn()

	c, err := client.New(cfg.Target.BaseURL, clientOptions(cfg, markers)...)
	if err != nil {
		return fmt.Errorf("creating the session client: %w", err)
	}
	defer c.Close()

	p, err := newProber(ctx, cfg, c)
	if err != nil {
		return err
	}

	return p.run(ctx)
}

func clientOptions(cfg *config.Config, markers session.MarkerRepository) []client.Option {
	return []client.Option{
		client.WithTenant(cfg.Target.TenantID),
		client.WithLoginURL(cfg.Target.LoginURL),
		client.WithTimeout(cfg.Target.Timeout),
		client.WithExpiryBuffer(cfg.Auth.ExpiryBuffer),
		client.WithRenewTimeout(cfg.Auth.RenewTimeout),
		client.WithMinRenewInterval(cfg.Auth.MinRenewInterval),
		client.WithMaxQueued(cfg.Auth.MaxQueued),
		client.WithMarker(markers, cfg.Marker.ID),
	}
}

func markerRepositoryFromConfig(cfg *config.Config) (_ session.MarkerRepository, closeFn func(), _ error) {
	switch cfg.Marker.Type {
	case config.MarkerTypeMemory, "":
		return sessioninmem.NewRepository(), func() {}, nil
	case config.MarkerTypeValkey:
		valkeyClient, err := config.NewValkeyClient(cfg.ValKey)
		if err != nil {
			return nil, nil, err
		}

		return sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	default:
		return nil, nil, &serviceerr.Error{
			Err:         serviceerr.CodeInvalidConfiguration,
			Description: fmt.Sprintf("unknown marker type %q", cfg.Marker.Type),
		}
	}
}

type prober struct {
	client  *client.Client
	probe   config.Probe
	auth    config.Auth
	limiter *rate.Limiter
	metrics *probeMetrics
	tracer  trace.Tracer
}

func newProber(ctx context.Context, cfg *config.Config, c *client.Client) (*prober, error) {
	m, err := newProbeMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.Probe.RatePerSecond > 0 {
		limit = rate.Limit(cfg.Probe.RatePerSecond)
	}

	return &prober{
		client:  c,
		probe:   cfg.Probe,
		auth:    cfg.Auth,
		limiter: rate.NewLimiter(limit, max(1, cfg.Probe.Concurrency)),
		metrics: m,
		tracer:  otel.Tracer("session-client/probe"),
	}, nil
}

func (p *prober) run(ctx context.Context) error {
	if err := p.ensureSession(ctx); err != nil {
		return err
	}
	p.client.Start(ctx)

	interval := p.probe.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		p.round(ctx)

		select {
		case <-ctx.Done():
			return nil
		case n := <-p.client.SessionEnded():
			if err := p.onSessionEnded(ctx, n); err != nil {
				return err
			}
		case <-tick.C:
		}
	}
}

// ensureSession restores the previous session when a marker exists and
// logs in otherwise.
func (p *prober) ensureSession(ctx context.Context) error {
	restored, err := p.client.Restore(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Could not restore the previous session", "error", err)
	}
	if restored {
		cmdutils.ReportSession(ctx, cmdutils.SessionRestored)
		return nil
	}

	return p.login(ctx)
}

func (p *prober) login(ctx context.Context) error {
	username, err := commoncfg.LoadValueFromSourceRef(p.auth.Username)
	if err != nil {
		return fmt.Errorf("loading username: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(p.auth.Password)
	if err != nil {
		return fmt.Errorf("loading password: %w", err)
	}

	if _, err := p.client.Login(ctx, string(username), string(password)); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	cmdutils.ReportSession(ctx, cmdutils.SessionAuthenticated)

	return nil
}

func (p *prober) onSessionEnded(ctx context.Context, n endsession.Notice) error {
	slogctx.Warn(ctx, "Session ended", "reason", n.Reason, "loginURL", n.LoginURL)
	cmdutils.ReportSession(ctx, cmdutils.SessionEnded)

	if !p.probe.Relogin {
		return serviceerr.ErrSessionEnded
	}

	if err := p.login(ctx); err != nil {
		return errors.Join(serviceerr.ErrSessionEnded, err)
	}

	return nil
}

// round probes every configured path once and returns the outcome count per
// category.
func (p *prober) round(ctx context.Context) map[string]int {
	ctx, span := p.tracer.Start(ctx, "probe-round", trace.WithAttributes(attribute.Int("paths", len(p.probe.Paths))))
	defer span.End()

	categories := make([]string, len(p.probe.Paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.probe.Concurrency))
	for i, path := range p.probe.Paths {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}
			categories[i] = p.request(gctx, path)

			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slogctx.Debug(ctx, "Probe round cut short", "error", err)
	}

	counts := make(map[string]int)
	for _, c := range categories {
		if c != "" {
			counts[c]++
		}
	}

	return counts
}

func (p *prober) request(ctx context.Context, path string) string {
	ctx = slogctx.With(ctx, commoncfg.AttrRequestID, uuid.NewString(), "path", path)
	start := time.Now()

	category := categoryOK
	resp, err := p.client.Get(ctx, path)
	if err != nil {
		category = string(serviceerr.Classify(nil, err))
		slogctx.Warn(ctx, "Probe request failed", "category", category, "error", err)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		slogctx.Debug(ctx, "Probe request succeeded", "status", resp.StatusCode)
	}

	p.metrics.record(ctx, path, category, time.Since(start))

	return category
}
