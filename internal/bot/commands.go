package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"whatsapp-sentinel/internal/capture"
	"whatsapp-sentinel/internal/surveil"
)

const helpText = `Available commands:
.ping — liveness check
.stats — capture pipeline counters
.deleted [n] — recently recovered deleted messages
.statuses [n] — recently recovered deleted statuses
.vv [n] — replay recent view-once captures
.watch add|remove <number> — toggle live forwarding for a subject
.watch list — watched subjects
.activity <number> — activity record for a subject
.top [n] — most active subjects
.clearactivity — drop all activity records
.antidelete on|off
.autostatus on|off
.anticall on|off
.ban <number> [reason] / .unban <number> / .bans
.warn <number> / .warns <number>`

// handleCommand parses one operator command and replies on the operator
// channel. Command failures are reported in-chat, never raised.
func (b *Bot) handleCommand(ctx context.Context, text string) {
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], commandPrefix)
	reply := b.execCommand(ctx, strings.ToLower(name), fields[1:])
	if reply == "" {
		return
	}

	operator := b.gateway.Operator()
	if operator == "" {
		return
	}
	if err := b.gateway.SendText(ctx, operator, reply); err != nil {
		b.log.Warnf("Failed to send command reply: %v", err)
	}
}

// execCommand runs one command and returns the reply text. An empty reply
// means the input was not a recognized command.
func (b *Bot) execCommand(ctx context.Context, name string, args []string) string {
	switch name {
	case "help":
		return helpText

	case "ping":
		return "pong 🏓"

	case "stats":
		s := b.CaptureStats()
		return fmt.Sprintf(
			"📊 Capture stats\nMessages cached: %d\nView-once cached: %d\nStatuses cached: %d\nDeleted messages: %d\nDeleted statuses: %d\nTracked subjects: %d",
			s.StoredMessages, s.StoredViewOnce, s.StoredStatuses, s.DeletedMessages, s.DeletedStatuses, b.tracker.Len())

	case "deleted":
		return formatDeleted(b.ListDeleted("message", argLimit(args, 5)), "deleted messages")

	case "statuses":
		return formatDeleted(b.ListDeleted("status", argLimit(args, 5)), "deleted statuses")

	case "vv":
		return b.replayViewOnce(ctx, argLimit(args, 1))

	case "watch":
		return b.execWatch(args)

	case "activity":
		if len(args) < 1 {
			return "Usage: .activity <number>"
		}
		subject, ok := b.tracker.Get(normalizeSubject(args[0]))
		if !ok {
			return "No activity recorded for " + args[0]
		}
		return formatSubject(subject)

	case "top":
		top := b.tracker.TopActive(argLimit(args, 5))
		if len(top) == 0 {
			return "No activity recorded yet"
		}
		var sb strings.Builder
		sb.WriteString("🏆 Most active subjects:")
		for i, s := range top {
			fmt.Fprintf(&sb, "\n%d. %s — %d messages", i+1, subjectLabel(s), s.MessageCount)
		}
		return sb.String()

	case "clearactivity":
		b.tracker.ClearAll()
		return "Activity records cleared"

	case "antidelete":
		return execToggle(name, args, "Anti-delete", b.cfg.SetAntiDelete)

	case "autostatus":
		return execToggle(name, args, "Auto-save statuses", b.cfg.SetAutoSaveStatus)

	case "anticall":
		return execToggle(name, args, "Anti-call", b.cfg.SetAntiCall)

	case "ban":
		if len(args) < 1 {
			return "Usage: .ban <number> [reason]"
		}
		subject := normalizeSubject(args[0])
		if err := b.store.AddBan(subject, strings.Join(args[1:], " ")); err != nil {
			b.log.Warnf("Failed to ban %s: %v", subject, err)
			return "Failed to save ban"
		}
		return "Banned " + subject

	case "unban":
		if len(args) < 1 {
			return "Usage: .unban <number>"
		}
		subject := normalizeSubject(args[0])
		removed, err := b.store.RemoveBan(subject)
		if err != nil {
			b.log.Warnf("Failed to unban %s: %v", subject, err)
			return "Failed to remove ban"
		}
		if !removed {
			return subject + " was not banned"
		}
		return "Unbanned " + subject

	case "bans":
		bans, err := b.store.ListBans(20)
		if err != nil {
			b.log.Warnf("Failed to list bans: %v", err)
			return "Failed to read bans"
		}
		if len(bans) == 0 {
			return "No active bans"
		}
		var sb strings.Builder
		sb.WriteString("🚫 Active bans:")
		for _, ban := range bans {
			fmt.Fprintf(&sb, "\n• %s", ban.JID)
			if ban.Reason != "" {
				fmt.Fprintf(&sb, " (%s)", ban.Reason)
			}
		}
		return sb.String()

	case "warn":
		if len(args) < 1 {
			return "Usage: .warn <number>"
		}
		subject := normalizeSubject(args[0])
		count, err := b.store.IncrementWarning(subject)
		if err != nil {
			b.log.Warnf("Failed to warn %s: %v", subject, err)
			return "Failed to save warning"
		}
		return fmt.Sprintf("⚠️ %s now has %d warning(s)", subject, count)

	case "warns":
		if len(args) < 1 {
			return "Usage: .warns <number>"
		}
		subject := normalizeSubject(args[0])
		count, err := b.store.GetWarnings(subject)
		if err != nil {
			b.log.Warnf("Failed to read warnings for %s: %v", subject, err)
			return "Failed to read warnings"
		}
		return fmt.Sprintf("%s has %d warning(s)", subject, count)
	}

	return ""
}

func (b *Bot) execWatch(args []string) string {
	if len(args) < 1 {
		return "Usage: .watch add|remove|list [number]"
	}
	switch args[0] {
	case "list":
		list := b.tracker.WatchList()
		if len(list) == 0 {
			return "Watch list is empty"
		}
		var sb strings.Builder
		sb.WriteString("👁️ Watched subjects:")
		for _, s := range list {
			fmt.Fprintf(&sb, "\n• %s — %d messages", subjectLabel(s), s.MessageCount)
		}
		return sb.String()

	case "add":
		if len(args) < 2 {
			return "Usage: .watch add <number>"
		}
		subject := normalizeSubject(args[1])
		b.tracker.WatchAdd(subject)
		return "Now watching " + subject

	case "remove":
		if len(args) < 2 {
			return "Usage: .watch remove <number>"
		}
		subject := normalizeSubject(args[1])
		b.tracker.WatchRemove(subject)
		return "Stopped watching " + subject
	}
	return "Usage: .watch add|remove|list [number]"
}

func execToggle(name string, args []string, label string, set func(bool)) string {
	if len(args) < 1 || (args[0] != "on" && args[0] != "off") {
		return "Usage: ." + name + " on|off"
	}
	on := args[0] == "on"
	set(on)
	if on {
		return label + " enabled ✅"
	}
	return label + " disabled ❌"
}

// replayViewOnce re-emits the n most recent view-once captures to the
// operator.
func (b *Bot) replayViewOnce(ctx context.Context, n int) string {
	records := b.interceptor.ViewOnce.Values()
	if len(records) == 0 {
		return "No view-once content captured yet"
	}
	if len(records) > n {
		records = records[len(records)-n:]
	}
	for _, rec := range records {
		b.replayer.Replay(ctx, rec, capture.TriggerViewOnce, time.Now())
	}
	return fmt.Sprintf("Replaying %d view-once capture(s)", len(records))
}

func argLimit(args []string, def int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return def
	}
	return n
}

// normalizeSubject strips the prefix operators habitually paste along with
// phone numbers.
func normalizeSubject(s string) string {
	s = strings.TrimPrefix(s, "+")
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	return s
}

func subjectLabel(s *surveil.Subject) string {
	if s.DisplayName != "" {
		return fmt.Sprintf("%s (+%s)", s.DisplayName, s.ID)
	}
	return "+" + s.ID
}

func formatSubject(s *surveil.Subject) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Activity for %s", subjectLabel(s))
	fmt.Fprintf(&sb, "\nMessages: %d", s.MessageCount)
	fmt.Fprintf(&sb, "\nFirst seen: %s", s.FirstSeenAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "\nLast seen: %s", s.LastSeenAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "\nKnown groups: %d", len(s.KnownGroups))
	if n := len(s.Recent); n > 0 {
		fmt.Fprintf(&sb, "\nRecent:")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, a := range s.Recent[start:] {
			fmt.Fprintf(&sb, "\n• %s at %s", a.Kind, a.At.Format("15:04:05"))
		}
	}
	return sb.String()
}

func formatDeleted(records []*capture.DeletedRecord, label string) string {
	if len(records) == 0 {
		return "No " + label + " recorded"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗑️ Recent %s:", label)
	for _, dr := range records {
		fmt.Fprintf(&sb, "\n• [%s] +%s (%s)", dr.DeletedAt.Format("15:04:05"), dr.SubjectID, dr.Kind)
		if dr.Text != "" {
			body := dr.Text
			if runes := []rune(body); len(runes) > 60 {
				body = string(runes[:60]) + "…"
			}
			fmt.Fprintf(&sb, ": %s", body)
		}
	}
	return sb.String()
}
