package triage

// OutboundPayload is an issue-create request shaped for the tracker's REST
// API (Jira v3 field layout). The core only guarantees it is fully populated;
// the receiving system validates its own schema.
type OutboundPayload struct {
	Fields IssueFields `json:"fields"`
}

// IssueFields is the "fields" object of an issue-create request.
type IssueFields struct {
	Project     ProjectRef `json:"project"`
	Summary     string     `json:"summary"`
	Description Doc        `json:"description"`
	IssueType   NameRef    `json:"issuetype"`
	Priority    NameRef    `json:"priority"`
	Labels      []string   `json:"labels"`
	Assignee    AccountRef `json:"assignee"`
	Components  []NameRef  `json:"components"`
}

// ProjectRef references a tracker project by key.
type ProjectRef struct {
	Key string `json:"key"`
}

// NameRef references a tracker entity by name.
type NameRef struct {
	Name string `json:"name"`
}

// AccountRef references a tracker user.
type AccountRef struct {
	AccountID string `json:"accountId"`
}

// Doc is a minimal rich-text document: one paragraph of plain text.
type Doc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []DocNode `json:"content"`
}

// DocNode is a node in a Doc tree.
type DocNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []DocNode `json:"content,omitempty"`
}

// BuildPayload assembles the outbound payload deterministically from the
// parsed ticket, classification and assignment. Labels and Components are
// never nil.
func BuildPayload(projectKey string, parsed *ParsedTicket, cls *Classification, a TeamAssignment) OutboundPayload {
	labels := make([]string, len(cls.Labels))
	copy(labels, cls.Labels)

	components := []NameRef{}
	if parsed.Component != "" {
		components = append(components, NameRef{Name: parsed.Component})
	}

	return OutboundPayload{
		Fields: IssueFields{
			Project: ProjectRef{Key: projectKey},
			Summary: parsed.Title,
			Description: Doc{
				Type:    "doc",
				Version: 1,
				Content: []DocNode{{
					Type:    "paragraph",
					Content: []DocNode{{Type: "text", Text: parsed.Description}},
				}},
			},
			IssueType:  NameRef{Name: cls.IssueType.DisplayName()},
			Priority:   NameRef{Name: string(cls.Priority)},
			Labels:     labels,
			Assignee:   AccountRef{AccountID: a.Assignee},
			Components: components,
		},
	}
}
