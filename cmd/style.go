package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/tair-protocol/domain/round"
	"github.com/luca-patrignani/tair-protocol/protocol"
)

// formatAmount renders base units as a decimal number of whole units.
func formatAmount[T ~uint64](v T) string {
	const unit = 1_000_000_000_000_000_000
	whole := uint64(v) / unit
	frac := strings.TrimRight(fmt.Sprintf("%018d", uint64(v)%unit), "0")
	if frac == "" {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%d.%s", whole, frac)
}

func shortDigest(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}

func participantRows(r *round.Round, players []participant, coord *protocol.Coordinator) pterm.TableData {
	rows := pterm.TableData{{"Participant", "Stake", "Commitment", "Revealed"}}
	for _, p := range players {
		digest, committed := r.CommitmentOf(p.id)
		commit := pterm.LightRed("none")
		if committed {
			commit = shortDigest(digest.String())
		}
		revealed := pterm.LightRed("no")
		if rv, ok := r.RevealOf(p.id); ok {
			revealed = pterm.LightGreen(fmt.Sprintf("%d", rv.Value))
		}
		rows = append(rows, []string{string(p.id), formatAmount(coord.BalanceOf(p.id)), commit, revealed})
	}
	return rows
}

func getRoundPanel(r *round.Round) pterm.Panel {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	info := pterm.Sprintfln("Sample: %d\nPot: %s\nCreator: %s\nPhase: %s", r.SampleID, formatAmount(r.Pot), r.Creator, r.Phase())
	return pterm.Panel{Data: pbox.WithTitle(pterm.LightYellow(fmt.Sprintf("|ROUND %d|", r.ID))).WithTitleTopCenter().Sprint(info)}
}

func getWinnerPanel(r *round.Round) pterm.Panel {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	winner, ok := r.Winner()
	if !ok {
		return pterm.Panel{Data: pbox.WithTitle(pterm.LightRed("|NO WINNER|")).WithTitleTopCenter().Sprint("The round was not validated")}
	}
	randomness, _ := r.Randomness()
	info := pterm.Sprintfln("%s wins\nrandomness %d mod %d revealers", pterm.LightCyan(string(winner)), randomness, len(r.Revealers()))
	return pterm.Panel{Data: pbox.WithTitle(pterm.LightGreen("|VALIDATED|")).WithTitleTopCenter().Sprint(info)}
}

func getEventsPanel(events []protocol.Event) pterm.Panel {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.String())
		b.WriteString("\n")
	}
	return pterm.Panel{Data: pbox.WithTitle(pterm.LightYellow("|EVENTS|")).WithTitleTopLeft().Sprint(b.String())}
}

func printRound(r *round.Round, players []participant, coord *protocol.Coordinator, events []protocol.Event) {
	_ = pterm.DefaultTable.WithHasHeader().WithData(participantRows(r, players, coord)).Render()
	pterm.Println()
	_ = pterm.DefaultPanel.WithPanels([][]pterm.Panel{
		{getRoundPanel(r), getWinnerPanel(r)},
		{getEventsPanel(events)},
	}).Render()
}
