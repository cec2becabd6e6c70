package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/modules/orders"
)

var exportHeader = []string{
	"Event Name", "Author Name", "Modifier Name", "Groom Name", "Bride Name", "Contact",
	"Affiliation Name", "Collection Method", "Status", "Created At", "Updated At",
	"Total Price", "Total Payment", "Payment Date", "Payment Method", "Address", "Notes",
}

// HandleDownload handles GET /orders/download: the filtered order list as
// CSV, one row per payment leg.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.service.Export(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "Failed to export orders")
		return
	}

	name := filter.EventName
	if name == "" {
		name = "orders"
	}
	filename := fmt.Sprintf("%s_%s.csv", name, time.Now().Format("20060102"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		h.log.Error().Err(err).Msg("Failed to write CSV header")
		return
	}
	for i := range list {
		for _, row := range exportRows(&list[i]) {
			if err := cw.Write(row); err != nil {
				h.log.Error().Err(err).Msg("Failed to write CSV row")
				return
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.log.Error().Err(err).Msg("Failed to flush CSV")
	}
}

// exportRows renders one row per payment leg, or a single row without
// payment columns when the order has none.
func exportRows(o *orders.Order) [][]string {
	base := []string{
		deref(o.EventName), deref(o.AuthorName), deref(o.ModifierName),
		o.GroomName, o.BrideName, o.Contact,
		deref(o.AffiliationName), o.CollectionMethod, string(o.Status),
		o.CreatedAt.Format(time.RFC3339), o.UpdatedAt.Format(time.RFC3339),
		strconv.FormatInt(o.TotalPrice, 10),
		strconv.FormatInt(o.AdvancePayment+o.BalancePayment, 10),
	}

	if len(o.Payments) == 0 {
		return [][]string{append(append([]string{}, base...), "", "", o.Address, o.Notes)}
	}

	rows := make([][]string, 0, len(o.Payments))
	for _, p := range o.Payments {
		rows = append(rows, append(append([]string{}, base...),
			p.PaymentDate, paymentMethodLabel(p.PaymentMethod), o.Address, p.Notes))
	}
	return rows
}

func paymentMethodLabel(m domain.PaymentMethod) string {
	switch m {
	case domain.PaymentAdvance:
		return "Advance"
	case domain.PaymentBalance:
		return "Balance"
	default:
		return string(m)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
