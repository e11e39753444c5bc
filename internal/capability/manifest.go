package capability

import (
	"fmt"
	"strings"
)

// Completion is the reserved built-in capability served by the completion
// service itself. It never appears in a Manifest.
const Completion = "completion"

// Entry maps a logical capability name to the connector that serves it.
type Entry struct {
	Name        string `yaml:"name"`
	ConnectorID string `yaml:"connector"`
	Label       string `yaml:"label"`
}

// Manifest is the static registry of capabilities a plan may reference.
// It is filled once at startup and only read afterwards.
type Manifest struct {
	entries map[string]Entry
	order   []string
}

func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string]Entry),
	}
}

// DefaultManifest returns the capabilities available out of the box.
func DefaultManifest() *Manifest {
	m := NewManifest()
	for _, e := range defaultEntries {
		_ = m.Register(e)
	}
	return m
}

var defaultEntries = []Entry{
	{Name: "crm", ConnectorID: "hubspot", Label: "CRM"},
	{Name: "spreadsheet", ConnectorID: "google_sheets", Label: "Spreadsheets"},
	{Name: "messaging", ConnectorID: "slack", Label: "Team messaging"},
	{Name: "email", ConnectorID: "gmail", Label: "Email inbox"},
	{Name: "calendar", ConnectorID: "google_calendar", Label: "Calendar"},
	{Name: "ticketing", ConnectorID: "zendesk", Label: "Support tickets"},
	{Name: "commerce", ConnectorID: "shopify", Label: "Store orders and products"},
	{Name: "web_search", ConnectorID: "local:web_search", Label: "Web search"},
	{Name: "web_page", ConnectorID: "local:web_page", Label: "Web page reader"},
}

// Register adds or replaces an entry. The reserved completion name and
// entries without a connector are rejected.
func (m *Manifest) Register(e Entry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("capability name is required")
	}
	if e.Name == Completion {
		return fmt.Errorf("capability name %q is reserved", Completion)
	}
	if e.ConnectorID == "" {
		return fmt.Errorf("capability %q has no connector", e.Name)
	}
	if e.Label == "" {
		e.Label = e.Name
	}
	if _, ok := m.entries[e.Name]; !ok {
		m.order = append(m.order, e.Name)
	}
	m.entries[e.Name] = e
	return nil
}

// Resolve looks up a capability by logical name.
func (m *Manifest) Resolve(name string) (Entry, bool) {
	e, ok := m.entries[name]
	return e, ok
}

// Entries returns all entries in registration order.
func (m *Manifest) Entries() []Entry {
	res := make([]Entry, 0, len(m.order))
	for _, name := range m.order {
		res = append(res, m.entries[name])
	}
	return res
}

// Describe renders the manifest as the bullet list handed to the planner.
func (m *Manifest) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s: free-form text generation, summarisation and analysis\n", Completion)
	for _, e := range m.Entries() {
		fmt.Fprintf(&sb, "- %s: %s\n", e.Name, e.Label)
	}
	return strings.TrimRight(sb.String(), "\n")
}
