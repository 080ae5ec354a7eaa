package service

import (
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/ws"
)

// Broadcaster is the minimal interface the services need from the WS hub.
// Implemented by ws.Hub; nil means no live updates (e.g. in the backoffice
// binary).
type Broadcaster interface {
	BroadcastInvoicePaid(msg ws.InvoicePaidMessage)
	BroadcastDealMatched(msg ws.DealMatchedMessage)
	BroadcastDealSettled(msg ws.DealSettledMessage)
	BroadcastDealVoided(msg ws.DealVoidedMessage)
}

// InvoiceWatcher is the fast-path contract DealService needs from the
// reconciler: a bounded per-intent poll spawned right after an invoice is
// created. Injected post-construction to avoid a constructor cycle.
type InvoiceWatcher interface {
	WatchInvoice(w *domain.InvoiceWait)
}
