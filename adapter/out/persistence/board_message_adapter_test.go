package persistence

import (
	"fmt"
	"strings"
	"testing"

	"mailboard_server/core/domain"
)

func TestBuildMessageWhere(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	t.Run("base filter", func(t *testing.T) {
		where, args := buildMessageWhere(&domain.MessageFilter{MailboxID: 1})
		if !strings.Contains(where, "mailbox_id = $1") {
			t.Errorf("where = %q, missing mailbox clause", where)
		}
		if !strings.Contains(where, "deleted_at IS NULL") || !strings.Contains(where, "NOT is_trashed") {
			t.Errorf("where = %q, missing liveness clauses", where)
		}
		// Snoozed messages are hidden by default
		if !strings.Contains(where, "snoozed_until IS NULL OR snoozed_until <= NOW()") {
			t.Errorf("where = %q, missing snooze gate", where)
		}
		if len(args) != 1 {
			t.Errorf("args = %v, want just the mailbox id", args)
		}
	})

	t.Run("every filter binds one placeholder", func(t *testing.T) {
		status := domain.TaskStatusTodo
		filter := &domain.MessageFilter{
			MailboxID:      1,
			IsRead:         boolPtr(false),
			IsStarred:      boolPtr(true),
			IsPinned:       boolPtr(true),
			HasAttachments: boolPtr(true),
			TaskStatus:     &status,
			FromEmail:      "Ana@Example.com",
			Label:          "Label_todo",
			ExcludeLabel:   "SPAM",
			Search:         "invoice",
		}
		where, args := buildMessageWhere(filter)

		for _, clause := range []string{
			"is_read = $",
			"is_starred = $",
			"is_pinned = $",
			"has_attachments = $",
			"task_status = $",
			"LOWER(sender_email) = LOWER($",
			"= ANY(labels)",
			"NOT ($",
			"subject ILIKE $",
			"snippet ILIKE $",
		} {
			if !strings.Contains(where, clause) {
				t.Errorf("where = %q, missing %q", where, clause)
			}
		}
		// mailbox id plus nine bound values; the search pattern is wrapped
		if len(args) != 10 {
			t.Fatalf("args = %d, want 10: %v", len(args), args)
		}
		if args[len(args)-1] != "%invoice%" {
			t.Errorf("search arg = %v, want the contains pattern", args[len(args)-1])
		}
		// Placeholders must be numbered consecutively
		for i := range args {
			placeholder := fmt.Sprintf("$%d", i+1)
			if !strings.Contains(where, placeholder) {
				t.Errorf("where = %q, missing %s", where, placeholder)
			}
		}
	})

	t.Run("snooze filter", func(t *testing.T) {
		where, _ := buildMessageWhere(&domain.MessageFilter{MailboxID: 1, IsSnoozed: boolPtr(true)})
		if !strings.Contains(where, "snoozed_until IS NOT NULL AND snoozed_until > NOW()") {
			t.Errorf("where = %q, want only currently snoozed", where)
		}

		where, _ = buildMessageWhere(&domain.MessageFilter{MailboxID: 1, IsSnoozed: boolPtr(false)})
		if !strings.Contains(where, "snoozed_until IS NULL OR snoozed_until <= NOW()") {
			t.Errorf("where = %q, want awake messages only", where)
		}
	})
}

func TestBuildMessageOrder(t *testing.T) {
	tests := []struct {
		name      string
		sortBy    string
		sortOrder string
		want      string
	}{
		{"default", "", "", "ORDER BY internal_date DESC, id DESC"},
		{"subject asc", domain.SortBySubject, "asc", "ORDER BY subject ASC, id DESC"},
		{"sender", domain.SortBySenderEmail, "desc", "ORDER BY sender_email DESC, id DESC"},
		{"received explicit", domain.SortByReceivedAt, "ASC", "ORDER BY internal_date ASC, id DESC"},
		{"unknown column falls back", "password", "asc", "ORDER BY internal_date ASC, id DESC"},
		{"injection attempt falls back", "subject; DROP TABLE messages", "", "ORDER BY internal_date DESC, id DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildMessageOrder(&domain.MessageFilter{SortBy: tt.sortBy, SortOrder: tt.sortOrder})
			if got != tt.want {
				t.Errorf("buildMessageOrder(%q, %q) = %q, want %q", tt.sortBy, tt.sortOrder, got, tt.want)
			}
		})
	}
}

func TestFuzzyMatchPredicate(t *testing.T) {
	t.Run("scoped to one field", func(t *testing.T) {
		got := fuzzyMatchPredicate(domain.SearchScopeSubject)
		if !strings.Contains(got, "subject_score > $3") || !strings.Contains(got, "subject ILIKE $7") {
			t.Errorf("subject predicate = %q, want threshold or contains", got)
		}
		if strings.Contains(got, "sender_score") || strings.Contains(got, "body_score") {
			t.Errorf("subject predicate = %q, leaks other fields", got)
		}
	})

	t.Run("all fields by default", func(t *testing.T) {
		got := fuzzyMatchPredicate(domain.SearchScopeAll)
		for _, field := range []string{"subject_score", "sender_score", "body_score"} {
			if !strings.Contains(got, field) {
				t.Errorf("default predicate = %q, missing %s", got, field)
			}
		}
	})
}
