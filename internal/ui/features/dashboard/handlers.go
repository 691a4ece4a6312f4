package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/certdesk/internal/i18n"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/internal/ui/features/common"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// NotificationLimit is the number of notifications the feed shows.
const NotificationLimit = 20

// Handlers provides HTTP handlers for the dashboard feature.
type Handlers struct {
	store  core.Store
	bus    *refresh.Bus
	logger *slog.Logger
	isDev  bool
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store core.Store, bus *refresh.Bus, logger *slog.Logger, isDev bool) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		store:  store,
		bus:    bus,
		logger: logger,
		isDev:  isDev,
		now:    time.Now,
	}
}

// DashboardPage renders the dashboard with full content.
func (h *Handlers) DashboardPage(w http.ResponseWriter, r *http.Request) {
	labels := common.Labels(r)
	cards, err := h.loadCards(r.Context(), labels)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	notifications, err := h.store.ListNotifications(r.Context(), NotificationLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := Data{Cards: cards, Notifications: notifications, Now: h.now()}
	if err := common.Page("Dashboard", "/", h.isDev, "", Content(data)).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// DashboardUpdates is the long-lived SSE endpoint for the dashboard. It sends
// nothing on connect; the page is already rendered.
func (h *Handlers) DashboardUpdates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	labels := common.Labels(r)

	updates := h.bus.Subscribe()
	defer h.bus.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			h.sendDashboard(ctx, sse, labels)
		}
	}
}

// sendDashboard reloads the stat cards and the feed in parallel. Each part
// is patched on its own, so one failing query does not hold back the other.
func (h *Handlers) sendDashboard(ctx context.Context, sse *datastar.ServerSentEventGenerator, labels i18n.Labels) {
	var (
		cards                     []StatCard
		notifications             []*core.Notification
		cardsErr, notificationErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		cards, cardsErr = h.loadCards(ctx, labels)
		return nil
	})
	g.Go(func() error {
		notifications, notificationErr = h.store.ListNotifications(ctx, NotificationLimit)
		return nil
	})
	_ = g.Wait()

	if cardsErr != nil {
		h.logger.Error("failed to load status counts", slog.Any("error", cardsErr))
		_ = sse.ConsoleError(cardsErr)
	} else if err := sse.PatchElementTempl(Stats(cards)); err != nil {
		_ = sse.ConsoleError(err)
	}

	if notificationErr != nil {
		h.logger.Error("failed to load notifications", slog.Any("error", notificationErr))
		_ = sse.ConsoleError(notificationErr)
	} else if err := sse.PatchElementTempl(Feed(notifications, h.now())); err != nil {
		_ = sse.ConsoleError(err)
	}
}

func (h *Handlers) loadCards(ctx context.Context, labels i18n.Labels) ([]StatCard, error) {
	counts, err := h.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]StatCard, 0, len(core.Statuses))
	for _, s := range core.Statuses {
		cards = append(cards, StatCard{Status: s, Label: labels.Status(s), Count: counts[s]})
	}
	return cards, nil
}
