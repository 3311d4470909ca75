package notifier

import (
	"fmt"
	"strings"
	"time"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/reserve"
)

func short(a ledger.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

func ids(list []uint64) string {
	parts := make([]string, len(list))
	for i, id := range list {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}

// FormatEvent renders a committed event as a Telegram message. Unknown events
// render as an empty string.
func FormatEvent(e model.Event) string {
	switch e := e.(type) {
	case model.Joined:
		return fmt.Sprintf("🐱 <b>Joined</b> record #%d by %s for %s ETH", e.ID, short(e.Member), e.Price.Ether())
	case model.MarketBought:
		msg := fmt.Sprintf("🛒 <b>Bought</b> record #%d for %s at %s ETH", e.ID, short(e.Owner), e.Price.Ether())
		if !e.Refund.IsZero() {
			msg += fmt.Sprintf(" (refunded %s ETH)", e.Refund.Ether())
		}
		return msg
	case model.Quit:
		return fmt.Sprintf("🚪 <b>Quit</b> %s returned %s and received %s ETH", short(e.Member), ids(e.IDs), e.Amount.Ether())
	case model.YieldClaimed:
		if e.ToReserve {
			return fmt.Sprintf("🌱 <b>Yield</b> %s ETH added to the reserve", e.Amount.Ether())
		}
		return fmt.Sprintf("🌱 <b>Yield</b> %s ETH forwarded to %s", e.Amount.Ether(), short(e.Recipient))
	case model.GovernorSet:
		if e.Governor == ledger.ZeroAddress {
			return "🏛 <b>Governor cleared</b>, yield stays in the reserve"
		}
		return fmt.Sprintf("🏛 <b>Governor set</b> to %s", short(e.Governor))
	case model.OwnershipTransferred:
		return fmt.Sprintf("🔑 <b>%s ownership</b> %s → %s", e.Component, short(e.Previous), short(e.Owner))
	case model.ProposalCreated:
		return fmt.Sprintf("🗳 <b>Proposal %d</b> hand control to %s\nQuorum: %d\nVoting ends: %s",
			e.Period, short(e.Candidate), e.Quorum, e.EndTime.UTC().Format("2006-01-02 15:04 MST"))
	case model.VoteCast:
		return fmt.Sprintf("✋ %s voted <b>%s</b> on proposal %d with weight %d", short(e.Voter), e.Support, e.Period, e.Weight)
	case model.ProposalSettled:
		result := "❌ failed"
		if e.Passed {
			result = "✅ passed"
		}
		return fmt.Sprintf("📣 <b>Proposal %d %s</b> (%d/%d votes)", e.Period, result, e.ForVotes, e.Quorum)
	case model.GovernanceLocked:
		return fmt.Sprintf("🔒 <b>Governance locked</b>, control now belongs to %s", e.Candidate.Hex())
	default:
		return ""
	}
}

// FormatReserveStatus formats the reserve for display.
func FormatReserveStatus(st reserve.State, issued uint64, price ledger.Amount) string {
	var b strings.Builder
	b.WriteString("📦 <b>Reserve status</b>\n\n")
	b.WriteString(fmt.Sprintf("Balance: %s ETH\n", st.Balance.Ether()))
	b.WriteString(fmt.Sprintf("Book value: %s ETH\n", st.BookValue.Ether()))
	b.WriteString(fmt.Sprintf("Join price: %s ETH\n", price.Ether()))
	b.WriteString(fmt.Sprintf("Members: %d (issued %d)\n", st.AdjustedSupply, issued))
	if st.YieldRecipientLocked {
		b.WriteString(fmt.Sprintf("Yield goes to: %s\n", short(st.Governor)))
	}
	b.WriteString(fmt.Sprintf("Owner: %s\n", short(st.Owner)))
	return b.String()
}

// FormatGovernance formats the bootstrap vote for display.
func FormatGovernance(state model.GovernanceState, p *model.Proposal, now time.Time) string {
	var b strings.Builder
	b.WriteString("🏛 <b>Governance</b>\n\n")
	b.WriteString(fmt.Sprintf("State: %s\n", state))
	if p == nil {
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Proposal %d: %s (%s)\n", p.Period, short(p.Candidate), p.Status))
	b.WriteString(fmt.Sprintf("For: %d / quorum %d\n", p.ForVotes, p.Quorum))
	b.WriteString(fmt.Sprintf("Against: %d | Abstain: %d\n", p.AgainstVotes, p.AbstainVotes))
	if p.Status == model.ProposalOpen {
		if left := p.EndTime.Sub(now); left > 0 {
			b.WriteString(fmt.Sprintf("Voting ends in %s\n", left.Round(time.Minute)))
		} else {
			b.WriteString("Voting ended, ready to settle\n")
		}
	}
	return b.String()
}
