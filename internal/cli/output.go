package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/syncer"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d4aa"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8C00"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

const ruleWidth = 50

func rule() string {
	return strings.Repeat("─", ruleWidth)
}

func header(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w, headerStyle.Render(title))
	_, _ = fmt.Fprintln(w, rule())
}

func field(w io.Writer, label string, value interface{}) {
	_, _ = fmt.Fprintf(w, "%s %v\n", labelStyle.Render(fmt.Sprintf("%-18s", label+":")), value)
}

// formatAgo renders t relative to now, or "never" for the zero time.
func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatBytes renders a size in KiB or MiB.
func formatBytes(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.1f KiB", float64(n)/unit)
	default:
		return fmt.Sprintf("%.1f MiB", float64(n)/(unit*unit))
	}
}

func formatPrice(l *models.Listing) string {
	if l.PriceMin == l.PriceMax {
		return fmt.Sprintf("Rp%d", l.PriceMin)
	}
	return fmt.Sprintf("Rp%d-%d", l.PriceMin, l.PriceMax)
}

func renderStatus(w io.Writer, st syncer.Status, stats *db.Stats, now time.Time) {
	header(w, "SYNC STATUS")

	conn := onlineStyle.Render("online")
	if !st.Online {
		conn = offlineStyle.Render("offline")
	}
	field(w, "Connectivity", conn)

	last := formatAgo(st.LastFullSync, now)
	if st.RefreshDue {
		last += " (refresh due)"
	}
	field(w, "Last full sync", last)
	field(w, "Pending writes", st.PendingMutations)
	if !st.LastDrainAt.IsZero() {
		d := st.LastDrain
		field(w, "Last drain", fmt.Sprintf("%s: %d replayed, %d failed, %d dropped",
			formatAgo(st.LastDrainAt, now), d.Replayed, d.Failed, d.Dropped))
	}
	if st.LastRefreshError != "" {
		field(w, "Refresh error", errorStyle.Render(st.LastRefreshError))
	}

	if stats != nil {
		_, _ = fmt.Fprintln(w)
		header(w, "CACHE")
		field(w, "Listings", stats.Listings)
		field(w, "Favorites", stats.Favorites)
		field(w, "Queued writes", stats.PendingMutations)
		field(w, "Database size", formatBytes(stats.CacheSizeBytes))
		field(w, "Schema version", stats.SchemaVersion)
	}
}

func renderListings(w io.Writer, title string, ls []*models.Listing) {
	header(w, fmt.Sprintf("%s (%d)", title, len(ls)))
	if len(ls) == 0 {
		_, _ = fmt.Fprintln(w, "No listings.")
		return
	}
	for _, l := range ls {
		_, _ = fmt.Fprintf(w, "%s  %s\n", headerStyle.Render(l.Name), labelStyle.Render(l.ID))
		_, _ = fmt.Fprintf(w, "  %s, %s, %d/%d rooms free, %s\n",
			l.Type, formatPrice(l), l.AvailableRooms, l.TotalRooms, l.Status)
		if l.Address != "" {
			_, _ = fmt.Fprintf(w, "  %s\n", l.Address)
		}
	}
}

func renderListing(w io.Writer, l *models.Listing) {
	header(w, l.Name)
	field(w, "ID", l.ID)
	field(w, "Status", l.Status)
	if l.PreviousStatus != "" {
		field(w, "Previous status", l.PreviousStatus)
	}
	field(w, "Type", l.Type)
	field(w, "Price", formatPrice(l))
	field(w, "Rooms", fmt.Sprintf("%d of %d free", l.AvailableRooms, l.TotalRooms))
	if len(l.Facilities) > 0 {
		field(w, "Facilities", strings.Join(l.Facilities, ", "))
	}
	if l.Address != "" {
		field(w, "Address", l.Address)
	}
	field(w, "Owner", fmt.Sprintf("%s (%s)", l.OwnerName, l.OwnerID))
	if l.Description != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", l.Description)
	}
}
