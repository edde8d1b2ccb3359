package dispatcher

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	payloadType     = "expiring_clients"
	testPayloadType = "test"
	payloadTag      = "expiring-clients"
	payloadIcon     = "/icons/icon-192x192.png"
	payloadBadge    = "/icons/badge-72x72.png"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// formatMoney renders cents the way the product shows prices, e.g. "R$ 49,90".
func formatMoney(cents int64) string {
	return "R$ " + brl.Sprintf("%.2f", float64(cents)/100)
}

func dueIn(days int) string {
	switch days {
	case 0:
		return "hoje"
	case 1:
		return "amanhã"
	default:
		return fmt.Sprintf("em %d dias", days)
	}
}

func title(mostUrgent, n int) string {
	switch {
	case mostUrgent <= 0:
		if n > 1 {
			return "🔴 Clientes vencem hoje"
		}
		return "🔴 Cliente vence hoje"
	case mostUrgent == 1:
		return "🟠 Vence amanhã"
	case mostUrgent <= 3:
		return fmt.Sprintf("🟠 Vence em %d dias", mostUrgent)
	default:
		return fmt.Sprintf("🔔 Vence em %d dias", mostUrgent)
	}
}

func body(b *notification.Batch) string {
	if b.Size() == 1 {
		c := b.Clients[0]
		var sb strings.Builder
		sb.WriteString(c.Name)
		sb.WriteString(" vence ")
		sb.WriteString(dueIn(b.MostUrgent))
		if c.PriceCents != nil {
			sb.WriteString(" - ")
			sb.WriteString(formatMoney(*c.PriceCents))
		}
		return sb.String()
	}

	s := fmt.Sprintf("%d clientes vencendo", b.Size())
	if b.TotalCents > 0 {
		s += " - total " + formatMoney(b.TotalCents)
	}
	return s
}

// buildPayload renders the notification for one seller batch. The client
// list is cut to what fits in one push message; ClientCount, TotalAmount
// and the body always describe the whole batch.
func buildPayload(b *notification.Batch, appURL string) notification.Payload {
	clients := make([]notification.PayloadClient, 0, b.Size())
	for _, c := range b.Clients {
		pc := notification.PayloadClient{ID: c.ID, Name: c.Name, Phone: c.Phone}
		if c.PriceCents != nil {
			v := float64(*c.PriceCents) / 100
			pc.Price = &v
		}
		clients = append(clients, pc)
	}

	p := notification.Payload{
		Title:              title(b.MostUrgent, b.Size()),
		Body:               body(b),
		Icon:               payloadIcon,
		Badge:              payloadBadge,
		Tag:                payloadTag,
		RequireInteraction: b.MostUrgent <= 1,
		Data: notification.PayloadData{
			URL:         strings.TrimRight(appURL, "/") + "/clients?filter=expiring",
			Type:        payloadType,
			MostUrgent:  b.MostUrgent,
			Days:        b.SortedDays(),
			TotalAmount: float64(b.TotalCents) / 100,
			ClientCount: b.Size(),
			Clients:     clients,
		},
	}
	fitClients(&p, notification.MaxPayloadSize)
	return p
}

// fitClients keeps the longest prefix of Data.Clients whose encoding is at
// most limit bytes. Clients are ordered by urgency, so the prefix keeps the
// most urgent ones.
func fitClients(p *notification.Payload, limit int) {
	all := p.Data.Clients
	fits := func(k int) bool {
		p.Data.Clients = all[:k]
		raw, err := json.Marshal(p)
		return err == nil && len(raw) <= limit
	}
	if fits(len(all)) {
		return
	}
	k := sort.Search(len(all)+1, func(k int) bool { return !fits(k) }) - 1
	p.Data.Clients = all[:max(k, 0)]
}

// encodePayload marshals p and refuses documents that cannot be sent.
func encodePayload(p notification.Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if len(raw) > notification.MaxPayloadSize {
		return nil, fmt.Errorf("payload is %d bytes, limit %d", len(raw), notification.MaxPayloadSize)
	}
	return raw, nil
}

func testPayload(appURL string) notification.Payload {
	return notification.Payload{
		Title: "🔔 Notificação de teste",
		Body:  "As notificações push estão funcionando.",
		Icon:  payloadIcon,
		Badge: payloadBadge,
		Tag:   "test",
		Data: notification.PayloadData{
			URL:        strings.TrimRight(appURL, "/") + "/",
			Type:       testPayloadType,
			MostUrgent: -1,
		},
	}
}
