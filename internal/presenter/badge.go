// Package presenter turns payment data into display strings. Nothing here
// touches the network or keeps state.
package presenter

import (
	"strings"

	"eventpay/internal/models"
)

// BadgeInfo is the visual representation of a payment status.
type BadgeInfo struct {
	Label string
	Icon  string
	Color string
	Emoji string
}

var (
	badgeCompleted = BadgeInfo{Label: "Completed", Icon: "check-circle", Color: "green", Emoji: "✅"}
	badgePending   = BadgeInfo{Label: "Pending", Icon: "clock", Color: "yellow", Emoji: "⏳"}
	badgeFailed    = BadgeInfo{Label: "Failed", Icon: "x-circle", Color: "red", Emoji: "❌"}
	badgeInitiated = BadgeInfo{Label: "Initiated", Icon: "loader", Color: "blue", Emoji: "🔄"}
	badgeUnknown   = BadgeInfo{Label: "Unknown", Icon: "help-circle", Color: "gray", Emoji: "❔"}
)

// Badge maps a raw status to its badge. Unrecognized values get the
// neutral "Unknown" badge.
func Badge(status string) BadgeInfo {
	switch models.Status(strings.ToLower(strings.TrimSpace(status))) {
	case models.StatusCompleted:
		return badgeCompleted
	case models.StatusPending:
		return badgePending
	case models.StatusFailed:
		return badgeFailed
	case models.StatusInitiated:
		return badgeInitiated
	}
	return badgeUnknown
}
