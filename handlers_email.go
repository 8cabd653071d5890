package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// Mock email API. Static fixture data behind the bearer gate; there is no
// real mail store.

type mailbox struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	UnreadCount int    `json:"unreadCount"`
	TotalCount  int    `json:"totalCount"`
}

type emailAddress struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
}

type emailSummary struct {
	ID             string       `json:"id"`
	From           emailAddress `json:"from"`
	Subject        string       `json:"subject"`
	Preview        string       `json:"preview"`
	Timestamp      string       `json:"timestamp"`
	Read           bool         `json:"read"`
	Starred        bool         `json:"starred"`
	HasAttachments bool         `json:"hasAttachments"`
	Labels         []string     `json:"labels"`
}

type emailAttachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size string `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

func avatarURL(style, seed string) *string {
	u := "https://api.dicebear.com/7.x/" + style + "/svg?seed=" + seed
	return &u
}

var mailboxes = []mailbox{
	{ID: "inbox", Name: "Inbox", Icon: "inbox", UnreadCount: 12, TotalCount: 156},
	{ID: "starred", Name: "Starred", Icon: "star", UnreadCount: 3, TotalCount: 24},
	{ID: "sent", Name: "Sent", Icon: "send", UnreadCount: 0, TotalCount: 89},
	{ID: "drafts", Name: "Drafts", Icon: "file-text", UnreadCount: 0, TotalCount: 7},
	{ID: "archive", Name: "Archive", Icon: "archive", UnreadCount: 0, TotalCount: 432},
	{ID: "trash", Name: "Trash", Icon: "trash", UnreadCount: 0, TotalCount: 23},
	{ID: "work", Name: "Work", Icon: "briefcase", UnreadCount: 5, TotalCount: 68},
	{ID: "personal", Name: "Personal", Icon: "user", UnreadCount: 2, TotalCount: 45},
}

func (a *App) HandleMailboxes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"mailboxes": mailboxes,
	})
}

const (
	maxPage    = 10000
	maxPerPage = 100
)

func (a *App) HandleEmails(w http.ResponseWriter, r *http.Request) {
	mailboxID := mux.Vars(r)["mailboxId"]

	// Clamped so start/end arithmetic cannot overflow on hostile input.
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	} else if page > maxPage {
		page = maxPage
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("perPage"))
	if err != nil || perPage < 1 {
		perPage = 50
	} else if perPage > maxPerPage {
		perPage = maxPerPage
	}

	all := mockEmails(mailboxID)
	total := len(all)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"emails":  all[start:end],
		"pagination": map[string]interface{}{
			"page":       page,
			"perPage":    perPage,
			"total":      total,
			"totalPages": (total + perPage - 1) / perPage,
		},
	})
}

func (a *App) HandleEmailDetail(w http.ResponseWriter, r *http.Request) {
	emailID := mux.Vars(r)["emailId"]
	now := time.Now().UTC()

	email := map[string]interface{}{
		"id": emailID,
		"from": emailAddress{
			Name:   "Sarah Johnson",
			Email:  "sarah.johnson@techcorp.com",
			Avatar: avatarURL("avataaars", "Sarah"),
		},
		"to": []emailAddress{
			{Name: "You", Email: "me@example.com"},
		},
		"cc": []emailAddress{
			{Name: "John Doe", Email: "john.doe@techcorp.com"},
		},
		"subject": "Q4 Project Update - Important",
		"body": `<div style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi there,</p>
			<p>I wanted to provide you with an update on the Q4 project status. We've made significant progress over the past few weeks:</p>
			<ul>
				<li><strong>Phase 1:</strong> Successfully completed user research and requirements gathering</li>
				<li><strong>Phase 2:</strong> Design mockups approved by stakeholders</li>
				<li><strong>Phase 3:</strong> Development is 60% complete</li>
			</ul>
			<p>We're on track to meet the December 15th deadline. However, we need to schedule a review meeting to discuss some architectural decisions.</p>
			<p><strong>Action Items:</strong></p>
			<ol>
				<li>Review the attached technical specification document</li>
				<li>Provide feedback by end of this week</li>
				<li>Schedule a follow-up meeting for next Monday</li>
			</ol>
			<p>Please let me know if you have any questions or concerns.</p>
			<p>Best regards,<br>Sarah Johnson<br>Senior Project Manager<br>TechCorp Inc.</p>
		</div>`,
		"timestamp":      isoTime(now.Add(-2 * time.Hour)),
		"read":           true,
		"starred":        true,
		"hasAttachments": true,
		"attachments": []emailAttachment{
			{ID: "att1", Name: "Q4_Technical_Spec.pdf", Size: "2.4 MB", Type: "application/pdf", URL: "#"},
			{ID: "att2", Name: "Project_Timeline.xlsx", Size: "1.1 MB", Type: "application/vnd.ms-excel", URL: "#"},
		},
		"labels": []string{"important", "work"},
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   email,
	})
}

// mockEmails builds the fixture list for a mailbox. Timestamps are relative
// to the request so the data always looks fresh.
func mockEmails(mailboxID string) []emailSummary {
	now := time.Now().UTC()
	base := []emailSummary{
		{
			ID:             "email1",
			From:           emailAddress{Name: "Sarah Johnson", Email: "sarah.johnson@techcorp.com", Avatar: avatarURL("avataaars", "Sarah")},
			Subject:        "Q4 Project Update - Important",
			Preview:        "Hi there, I wanted to provide you with an update on the Q4 project status. We've made significant progress...",
			Timestamp:      isoTime(now.Add(-2 * time.Hour)),
			Read:           false,
			Starred:        true,
			HasAttachments: true,
			Labels:         []string{"important", "work"},
		},
		{
			ID:             "email2",
			From:           emailAddress{Name: "GitHub", Email: "notifications@github.com", Avatar: avatarURL("identicon", "GitHub")},
			Subject:        "[myrepo] Pull Request #234: Add authentication feature",
			Preview:        "John Doe wants to merge 5 commits into main from feature/auth. Review the changes and provide feedback...",
			Timestamp:      isoTime(now.Add(-5 * time.Hour)),
			Read:           false,
			Starred:        false,
			HasAttachments: false,
			Labels:         []string{"github", "review"},
		},
		{
			ID:             "email3",
			From:           emailAddress{Name: "Jennifer Lee", Email: "jennifer.lee@company.com", Avatar: avatarURL("avataaars", "Jennifer")},
			Subject:        "Meeting Notes - Team Sync 11/15",
			Preview:        "Thanks everyone for joining today's sync. Here are the key takeaways and action items from our discussion...",
			Timestamp:      isoTime(now.Add(-8 * time.Hour)),
			Read:           true,
			Starred:        false,
			HasAttachments: true,
			Labels:         []string{"meetings"},
		},
		{
			ID:             "email4",
			From:           emailAddress{Name: "Michael Chen", Email: "mchen@designstudio.com", Avatar: avatarURL("avataaars", "Michael")},
			Subject:        "Re: Design Feedback Request",
			Preview:        "I've reviewed the latest mockups and overall they look great! Just a few minor suggestions on the color scheme...",
			Timestamp:      isoTime(now.Add(-24 * time.Hour)),
			Read:           true,
			Starred:        true,
			HasAttachments: false,
			Labels:         []string{"design"},
		},
		{
			ID:             "email5",
			From:           emailAddress{Name: "LinkedIn", Email: "notifications@linkedin.com", Avatar: avatarURL("identicon", "LinkedIn")},
			Subject:        "Your weekly network update",
			Preview:        "See who's viewed your profile this week and discover new opportunities to connect with professionals...",
			Timestamp:      isoTime(now.Add(-2 * 24 * time.Hour)),
			Read:           false,
			Starred:        false,
			HasAttachments: false,
			Labels:         []string{"social"},
		},
		{
			ID:             "email6",
			From:           emailAddress{Name: "Alex Martinez", Email: "alex.martinez@startup.io", Avatar: avatarURL("avataaars", "Alex")},
			Subject:        "Coffee chat next week?",
			Preview:        "Hey! It's been a while since we last caught up. Would you be free for a coffee chat sometime next week?",
			Timestamp:      isoTime(now.Add(-2 * 24 * time.Hour)),
			Read:           true,
			Starred:        false,
			HasAttachments: false,
			Labels:         []string{"personal"},
		},
		{
			ID:             "email7",
			From:           emailAddress{Name: "Emma Wilson", Email: "emma.wilson@finance.com", Avatar: avatarURL("avataaars", "Emma")},
			Subject:        "Invoice #INV-2024-1156",
			Preview:        "Please find attached the invoice for services rendered in November 2024. Payment is due within 30 days...",
			Timestamp:      isoTime(now.Add(-3 * 24 * time.Hour)),
			Read:           false,
			Starred:        false,
			HasAttachments: true,
			Labels:         []string{"finance", "important"},
		},
		{
			ID:             "email8",
			From:           emailAddress{Name: "David Park", Email: "dpark@consulting.com", Avatar: avatarURL("avataaars", "David")},
			Subject:        "Proposal for Q1 2025 Strategy",
			Preview:        "I've drafted a comprehensive proposal for our Q1 2025 strategy. Please review and let me know your thoughts...",
			Timestamp:      isoTime(now.Add(-4 * 24 * time.Hour)),
			Read:           true,
			Starred:        true,
			HasAttachments: true,
			Labels:         []string{"strategy", "review"},
		},
		{
			ID:             "email9",
			From:           emailAddress{Name: "Newsletter", Email: "weekly@techdigest.com", Avatar: avatarURL("identicon", "Newsletter")},
			Subject:        "This Week in Tech: AI Breakthroughs and More",
			Preview:        "Your weekly roundup of the most important tech news, including major AI developments, startup funding...",
			Timestamp:      isoTime(now.Add(-5 * 24 * time.Hour)),
			Read:           true,
			Starred:        false,
			HasAttachments: false,
			Labels:         []string{"newsletter"},
		},
		{
			ID:             "email10",
			From:           emailAddress{Name: "Rachel Green", Email: "rachel.green@marketing.com", Avatar: avatarURL("avataaars", "Rachel")},
			Subject:        "Marketing Campaign Results",
			Preview:        "Great news! Our latest campaign exceeded expectations with a 45% increase in engagement. Here's the full report...",
			Timestamp:      isoTime(now.Add(-6 * 24 * time.Hour)),
			Read:           false,
			Starred:        false,
			HasAttachments: true,
			Labels:         []string{"marketing", "results"},
		},
		{
			ID:             "email11",
			From:           emailAddress{Name: "Support Team", Email: "support@service.com", Avatar: avatarURL("identicon", "Support")},
			Subject:        "Re: Ticket #45678 - Issue Resolved",
			Preview:        "We're happy to inform you that your support ticket has been resolved. Please let us know if you need further assistance...",
			Timestamp:      isoTime(now.Add(-7 * 24 * time.Hour)),
			Read:           true,
			Starred:        false,
			HasAttachments: false,
			Labels:         []string{"support"},
		},
		{
			ID:             "email12",
			From:           emailAddress{Name: "Tom Anderson", Email: "tanderson@agency.com", Avatar: avatarURL("avataaars", "Tom")},
			Subject:        "Partnership Opportunity",
			Preview:        "I came across your profile and think there could be a great partnership opportunity between our companies...",
			Timestamp:      isoTime(now.Add(-7 * 24 * time.Hour)),
			Read:           false,
			Starred:        false,
			HasAttachments: false,
			Labels:         []string{"business"},
		},
	}

	switch mailboxID {
	case "starred":
		return filterEmails(base, func(e emailSummary) bool { return e.Starred })
	case "sent":
		sent := make([]emailSummary, 0, 6)
		for _, e := range base[:6] {
			e.From = emailAddress{Name: "Me", Email: "me@example.com"}
			sent = append(sent, e)
		}
		return sent
	case "drafts":
		return base[:3]
	case "trash":
		return base[len(base)-4:]
	case "work":
		return filterEmails(base, func(e emailSummary) bool { return hasLabel(e, "work") })
	case "personal":
		return filterEmails(base, func(e emailSummary) bool { return hasLabel(e, "personal") })
	default:
		return base
	}
}

func filterEmails(emails []emailSummary, keep func(emailSummary) bool) []emailSummary {
	out := make([]emailSummary, 0, len(emails))
	for _, e := range emails {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func hasLabel(e emailSummary, label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}
