package watcher

import (
	"context"

	"github.com/avolkov/sharewatch/internal/broker"
	"github.com/avolkov/sharewatch/internal/models"
	"github.com/shopspring/decimal"
)

// handleExecuted dispatches a broker-reported fill to the entry-fill or
// exit-fill path depending on the row's order type.
func (w *Watcher) handleExecuted(ctx context.Context, order *models.TrackedOrder, executedPrice decimal.Decimal) {
	if order.OrderType == models.OrderTypeEntry {
		w.handleEntryFilled(ctx, order, executedPrice)
		return
	}
	w.handleExitFilled(ctx, order, executedPrice)
}

// handleEntryFilled places the protective SL and target TP once the entry
// buy fills, arming the SL-placement guard across the gap (§4.4/§4.5).
func (w *Watcher) handleEntryFilled(ctx context.Context, order *models.TrackedOrder, executedPrice decimal.Decimal) {
	log := w.log.WithField("entry_order_id", order.OrderID).WithField("ticker", order.Ticker)

	if err := w.store.MarkExecuted(order.OrderID, executedPrice, "entry_filled", nil, nil); err != nil {
		log.WithError(err).Error("failed to record entry fill")
	}
	w.drop(order.OrderID)

	if w.mode.GetMode() == models.ModeMonitorOnly {
		log.Info("monitor-only mode: observed entry fill without placing SL/TP")
		return
	}
	if w.mode.GetMode() != models.ModeAuto {
		log.Info("manual mode: entry filled, operator must place SL/TP by hand")
		return
	}

	var slID *models.TrackedOrder
	var slErr error
	var slPtr *string

	if existingSL := w.existingChild(order.OrderID, models.OrderTypeStopLoss); existingSL != nil {
		// A restart can re-observe an already-filled entry whose SL was
		// placed in a prior run but never marked executed in the store
		// (S4/§9): skip placing a second SL and just make sure no guard
		// timer is left armed for it.
		log.Info("stop-loss already pending for this entry, skipping duplicate placement")
		w.guard.NotifyPlaced(order.OrderID)
		w.TrackOrder(existingSL)
		slID = existingSL
	} else {
		w.guard.Start(order.OrderID, w.cfg.SLTimeout, func() {
			w.emergencyClose(context.Background(), order)
		})

		slID, slErr = w.placeExit(ctx, order, order.StopPrice, models.OrderTypeStopLoss)
		if slErr != nil {
			log.WithError(slErr).Error("failed to place stop-loss, emergency close guard remains armed")
		} else {
			w.guard.NotifyPlaced(order.OrderID)
			w.TrackOrder(slID)
			id := slID.OrderID
			slPtr = &id
		}
	}

	var tpPtr *string
	if existingTP := w.existingChild(order.OrderID, models.OrderTypeTakeProfit); existingTP != nil {
		log.Info("take-profit already pending for this entry, skipping duplicate placement")
		w.TrackOrder(existingTP)
	} else {
		tpID, tpErr := w.placeExit(ctx, order, order.TargetPrice, models.OrderTypeTakeProfit)
		if tpErr != nil {
			log.WithError(tpErr).Error("failed to place take-profit")
		} else {
			w.TrackOrder(tpID)
			id := tpID.OrderID
			tpPtr = &id
		}
	}

	if slPtr != nil || tpPtr != nil {
		if err := w.store.LinkSiblings(order.OrderID, slPtr, tpPtr); err != nil {
			log.WithError(err).Error("failed to link SL/TP siblings")
		}
	}
}

// existingChild returns a still-pending sibling of the given order type
// already linked to parentID, or nil if none exists.
func (w *Watcher) existingChild(parentID string, orderType models.OrderType) *models.TrackedOrder {
	siblings, err := w.store.ListByParent(parentID)
	if err != nil {
		w.log.WithError(err).WithField("parent_order_id", parentID).Warn("failed to check for existing sibling order")
		return nil
	}
	for _, sib := range siblings {
		if sib.OrderType == orderType && sib.Status == models.StatusPending {
			return sib
		}
	}
	return nil
}

// placeExit submits one protective order and persists the resulting row.
func (w *Watcher) placeExit(ctx context.Context, entry *models.TrackedOrder, triggerPrice decimal.Decimal, orderType models.OrderType) (*models.TrackedOrder, error) {
	kind := broker.KindStopLoss
	if orderType == models.OrderTypeTakeProfit {
		kind = broker.KindTakeProfit
	}

	var placed *broker.PlacedOrder
	err := w.retry.Do(ctx, string(orderType)+":"+entry.Ticker, func(opCtx context.Context) error {
		var placeErr error
		placed, placeErr = w.brokerPort.PlaceStopOrder(opCtx, entry.FIGI, entry.Quantity, triggerPrice, broker.SideSell, kind, broker.TIFGoodTillCancel)
		return placeErr
	})
	if err != nil {
		return nil, err
	}

	row := models.NewTrackedOrder(placed.OrderID, entry.Ticker, entry.FIGI, orderType, entry.CreatedBy)
	row.Quantity = entry.Quantity
	row.LotSize = entry.LotSize
	row.EntryPrice = entry.EntryPrice
	row.StopPrice = entry.StopPrice
	row.TargetPrice = entry.TargetPrice
	row.ParentOrderID = entry.OrderID
	if err := w.store.SaveTracked(row); err != nil {
		w.log.WithError(err).WithField("order_id", row.OrderID).Error("failed to persist exit order")
	}
	return row, nil
}

// handleExitFilled records the realised PnL and cancels the now-moot
// sibling leg of the OCO pair (I3).
func (w *Watcher) handleExitFilled(ctx context.Context, order *models.TrackedOrder, executedPrice decimal.Decimal) {
	log := w.log.WithField("order_id", order.OrderID).WithField("ticker", order.Ticker)

	pnlRub, pnlPct := computePnL(order, executedPrice)
	reason := "sl_triggered"
	if order.OrderType == models.OrderTypeTakeProfit {
		reason = "tp_triggered"
	}

	if err := w.store.MarkExecuted(order.OrderID, executedPrice, reason, &pnlRub, &pnlPct); err != nil {
		log.WithError(err).Error("failed to record exit fill")
	}
	w.drop(order.OrderID)

	slFilled := 0
	tpFilled := 0
	if order.OrderType == models.OrderTypeStopLoss {
		slFilled = 1
	} else {
		tpFilled = 1
	}
	if _, err := w.mode.IncrementStats(0, slFilled, tpFilled, pnlRub); err != nil {
		log.WithError(err).Error("failed to update running stats")
	}

	pendingSiblings, err := w.pendingSiblings(order)
	if err != nil {
		log.WithError(err).Error("failed to look up sibling order")
		return
	}
	for _, sib := range pendingSiblings {
		if cancelErr := w.brokerPort.CancelStopOrder(ctx, sib.OrderID); cancelErr != nil {
			log.WithError(cancelErr).WithField("sibling_id", sib.OrderID).Warn("failed to cancel sibling order at broker, marking cancelled locally regardless")
		}
		if err := w.store.MarkCancelled(sib.OrderID, "oco"); err != nil {
			log.WithError(err).WithField("sibling_id", sib.OrderID).Error("failed to mark sibling cancelled")
		}
		w.drop(sib.OrderID)
	}
}

// pendingSiblings finds the still-pending OCO partner(s) of a filled exit
// order: first by parent_order_id, falling back to ticker + opposite kind
// when the linkage is missing (§4.5 handle-executed(stop_loss/take_profit)
// step 3), e.g. for a row rehydrated from before LinkSiblings ran.
func (w *Watcher) pendingSiblings(order *models.TrackedOrder) ([]*models.TrackedOrder, error) {
	var pending []*models.TrackedOrder
	if order.ParentOrderID != "" {
		byParent, err := w.store.ListByParent(order.ParentOrderID)
		if err != nil {
			return nil, err
		}
		for _, sib := range byParent {
			if sib.OrderID != order.OrderID && sib.Status == models.StatusPending {
				pending = append(pending, sib)
			}
		}
		if len(pending) > 0 {
			return pending, nil
		}
	}

	opposite := models.OrderTypeTakeProfit
	if order.OrderType == models.OrderTypeTakeProfit {
		opposite = models.OrderTypeStopLoss
	}
	allPending, err := w.store.ListPending()
	if err != nil {
		return nil, err
	}
	for _, row := range allPending {
		if row.OrderID != order.OrderID && row.Ticker == order.Ticker && row.OrderType == opposite {
			pending = append(pending, row)
		}
	}
	return pending, nil
}

// computePnL derives realised rouble and percentage PnL for an exit fill.
func computePnL(order *models.TrackedOrder, executedPrice decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	entry := order.EntryPrice
	qty := decimal.NewFromInt(int64(order.Quantity * max(order.LotSize, 1)))
	pnlRub := executedPrice.Sub(entry).Mul(qty)
	if entry.IsZero() {
		return pnlRub, decimal.Zero
	}
	pnlPct := executedPrice.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
	return pnlRub, pnlPct
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// handleCancelled records a broker-observed cancellation.
func (w *Watcher) handleCancelled(order *models.TrackedOrder, reason string) {
	if err := w.store.MarkCancelled(order.OrderID, reason); err != nil {
		w.log.WithError(err).WithField("order_id", order.OrderID).Error("failed to record cancellation")
	}
	w.guard.NotifyPlaced(order.OrderID)
	w.drop(order.OrderID)
}

// resolveMissing cross-checks the portfolio when a tracked order has
// dropped out of ListStopOrders without an explicit status: either the
// broker's last-seen snapshot already settled it (so it was always either
// executed or cancelled and we simply missed the transition), or the
// listing genuinely raced a placement. The portfolio holding is the
// ground truth: present means filled, absent means cancelled/rejected.
func (w *Watcher) resolveMissing(ctx context.Context, order *models.TrackedOrder) {
	log := w.log.WithField("order_id", order.OrderID).WithField("ticker", order.Ticker)

	positions, err := w.brokerPort.GetPortfolio(ctx)
	if err != nil {
		log.WithError(err).Warn("could not resolve missing order against portfolio, leaving tracked")
		return
	}

	held := false
	avgPrice := decimal.Zero
	for _, p := range positions {
		if p.FIGI == order.FIGI && p.Quantity > 0 {
			held = true
			avgPrice = p.AveragePrice
			break
		}
	}

	switch {
	case order.OrderType == models.OrderTypeEntry && held:
		log.Warn("entry order vanished from broker listing but portfolio shows the position: treating as filled at the portfolio average price")
		price := avgPrice
		if !price.IsPositive() {
			price = order.EntryPrice
		}
		if price.IsZero() {
			if last, lastErr := w.brokerPort.GetLastPrice(ctx, order.FIGI); lastErr == nil {
				price = last
			}
		}
		w.handleEntryFilled(ctx, order, price)
	case order.OrderType == models.OrderTypeEntry && !held:
		log.Warn("entry order vanished from broker listing and portfolio confirms no position: treating as cancelled")
		w.handleCancelled(order, "resolved_missing_cancelled")
	case held:
		// an SL/TP row vanished but the position is still open: the
		// exchange executed it, we just missed the status transition.
		price := order.StopPrice
		if order.OrderType == models.OrderTypeTakeProfit {
			price = order.TargetPrice
		}
		w.handleExitFilled(ctx, order, price)
	default:
		w.handleCancelled(order, "resolved_missing_cancelled")
	}
}

// emergencyClose flattens the position with a market sell when the SL
// failed to register within the guard deadline (§4.4).
func (w *Watcher) emergencyClose(ctx context.Context, order *models.TrackedOrder) {
	log := w.log.WithField("order_id", order.OrderID).WithField("ticker", order.Ticker)
	log.Error("SL-placement guard expired, emergency-closing position")

	ctx, cancel := context.WithTimeout(ctx, broker.DefaultRequestTimeout)
	defer cancel()

	placed, err := w.brokerPort.PlaceMarketOrder(ctx, order.FIGI, order.Quantity, broker.SideSell)
	if err != nil {
		log.WithError(err).Error("emergency close market order failed, position remains unprotected")
		return
	}

	price, err := w.brokerPort.GetLastPrice(ctx, order.FIGI)
	if err != nil {
		price = order.EntryPrice
	}
	pnlRub, pnlPct := computePnL(order, price)

	if err := w.store.MarkExecuted(order.OrderID, price, "emergency_close", &pnlRub, &pnlPct); err != nil {
		log.WithError(err).Error("failed to record emergency close")
	}
	if _, err := w.mode.IncrementStats(0, 0, 0, pnlRub); err != nil {
		log.WithError(err).Error("failed to update running stats after emergency close")
	}
	log.WithField("market_order_id", placed.OrderID).Warn("emergency close submitted; any take-profit already placed for this entry stays live at the broker and needs manual cancellation")
	w.drop(order.OrderID)
}
